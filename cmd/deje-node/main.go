// cmd/deje-node is the main entrypoint for a DEJE replica process.
//
// Configuration is entirely via flags so a single binary can serve any
// peer in a cooperative-editing network.
//
// Example — two-node document, node1 side:
//
//	./deje-node --name node1 --addr :9001 \
//	            --doc notes --participants node1=:9001,node2=:9002 \
//	            --writers node1,node2
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"deje/internal/document"
	"deje/internal/handler/delta"
	"deje/internal/identity"
	"deje/internal/protocol"
	"deje/internal/transport/httptransport"
)

func main() {
	nodeName := flag.String("name", "node1", "This replica's identity name")
	addr := flag.String("addr", ":9001", "Listen address (host:port)")
	docName := flag.String("doc", "doc1", "Document name")
	participantsFlag := flag.String("participants", "", "Comma-separated name=address pairs, including self")
	writersFlag := flag.String("writers", "", "Comma-separated subset of participant names allowed to write")
	readThreshold := flag.Int("read-threshold", 1, "Signatures required to complete a read quorum")
	writeThreshold := flag.Int("write-threshold", 1, "Signatures required to complete a write quorum")
	freezeInterval := flag.Duration("freeze-interval", 60*time.Second, "How often to freeze the document (snapshot current resources, discard the event log)")
	flag.Parse()

	participants, self, err := parseParticipants(*participantsFlag, *nodeName, *addr)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	identities := identity.NewCache()
	for _, p := range participants {
		identities.Put(p)
	}

	writers := parseWriters(*writersFlag, participants)

	tr := httptransport.New(*addr)
	owner := protocol.New(self, identities, tr)

	h := delta.New(delta.Policy{
		Participants: participants,
		Subscribers:  nil,
		Writers:      writers,
		Thresholds:   map[string]int{"read": *readThreshold, "write": *writeThreshold},
	}, nil)

	doc := document.New(document.Config{
		Name:       *docName,
		Self:       self,
		Identities: identities,
		Handler:    h,
		Owner:      owner,
	})
	h.SetHost(doc)
	owner.AddDocument(doc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go owner.Run(ctx)

	go func() {
		log.Printf("deje-node %s listening on %s, serving document %q", *nodeName, *addr, *docName)
		if err := tr.Listen(ctx, owner.Enqueue); err != nil {
			log.Printf("transport listen error: %v", err)
		}
	}()

	// Periodic freeze, replacing the teacher's periodic store snapshot:
	// rebases the document's initial snapshot on its current resources
	// and discards the event log. In-flight quorums are not touched.
	go func() {
		ticker := time.NewTicker(*freezeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				doc.Freeze()
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down", *nodeName)
	cancel()
}

// parseParticipants decodes "name=addr,name=addr,..." into identities,
// and returns the one matching selfName/selfAddr as a signing identity.
func parseParticipants(spec, selfName, selfAddr string) ([]identity.Identity, identity.Identity, error) {
	var participants []identity.Identity
	var self identity.Identity
	var foundSelf bool

	if spec != "" {
		for _, entry := range strings.Split(spec, ",") {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return nil, identity.Identity{}, fmt.Errorf("invalid participant entry %q: expected name=address", entry)
			}
			name, addr := parts[0], parts[1]
			if name == selfName {
				id, err := identity.New(name, addr)
				if err != nil {
					return nil, identity.Identity{}, err
				}
				self, foundSelf = id, true
				participants = append(participants, id)
			} else {
				participants = append(participants, identity.NewPublic(name, addr, nil))
			}
		}
	}

	if !foundSelf {
		id, err := identity.New(selfName, selfAddr)
		if err != nil {
			return nil, identity.Identity{}, err
		}
		self = id
		participants = append(participants, id)
	}
	return participants, self, nil
}

func parseWriters(spec string, participants []identity.Identity) map[string]bool {
	writers := make(map[string]bool, len(participants))
	if spec == "" {
		for _, p := range participants {
			writers[p.Name] = true
		}
		return writers
	}
	for _, name := range strings.Split(spec, ",") {
		writers[strings.TrimSpace(name)] = true
	}
	return writers
}

