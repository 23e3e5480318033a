// cmd/dexter is a low-level interactive DEJE client: a REPL over the
// fixed command surface backed by internal/dexter. Each line is
// tokenized and dispatched through a Cobra command tree rebuilt per
// line (SetArgs+Execute), which is what lets "help"/"commands" reuse
// Cobra's own Use/Short metadata while keeping state (the variable
// store, and whatever dinit constructs) in the enclosing Interface
// rather than in the Cobra commands themselves.
//
// Example:
//
//	msglog> vset greeting "hello"
//	msglog> vget greeting
//	"hello"
//	msglog> quit
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"deje/internal/dexter"

	"github.com/spf13/cobra"
)

const prompt = "msglog> "

func main() {
	iface := dexter.New()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		fmt.Println(prompt + line)
		if line == "" {
			continue
		}
		args := strings.Fields(line)

		root := buildRoot(iface)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			fmt.Println(err)
		}
	}
}

// buildRoot constructs a fresh Cobra tree bound to iface — cheap enough
// to do once per input line, and it keeps each command's RunE free of
// any state not reachable through iface.
func buildRoot(iface *dexter.Interface) *cobra.Command {
	root := &cobra.Command{Use: "dexter", SilenceUsage: true, SilenceErrors: true}

	root.AddCommand(
		helpCmd(), commandsCmd(), quitCmd(),
		vgetCmd(iface), vsetCmd(iface), vdelCmd(iface), vcloneCmd(iface),
		vsaveCmd(iface), vloadCmd(iface),
		dinitCmd(iface), deventCmd(iface), dexportCmd(iface),
		dvexportCmd(iface), dgetLatestCmd(iface),
		freadCmd(iface), fwriteCmd(),
		viewCmd(),
	)
	return root
}

func helpCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "help",
		Short:              dexter.Descriptions["help"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, line := range dexter.Help(args) {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: dexter.Descriptions["commands"],
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, line := range dexter.CommandsList() {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: dexter.Descriptions["quit"],
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(0)
			return nil
		},
	}
}

func viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: dexter.Descriptions["view"],
		RunE: func(cmd *cobra.Command, args []string) error {
			// Dexter only ever runs a single "msglog" view in this
			// port — no other view's worth building without a real
			// multi-pane terminal UI behind it.
			fmt.Println("msglog (current)")
			return nil
		},
	}
}

func vgetCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "vget [path...]",
		Short:              dexter.Descriptions["vget"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := iface.Vget(args)
			if err != nil {
				fmt.Println(err)
				return nil
			}
			fmt.Println(out)
			return nil
		},
	}
}

func vsetCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "vset [path...] value",
		Short:              dexter.Descriptions["vset"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := iface.Vset(args); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func vdelCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "vdel [path...]",
		Short:              dexter.Descriptions["vdel"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := iface.Vdel(args); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func vcloneCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "vclone src... -- dst...",
		Short:              dexter.Descriptions["vclone"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst, ok := splitOnSeparator(args)
			if !ok {
				fmt.Println("vclone: expected src... -- dst...")
				return nil
			}
			if err := iface.Vclone(src, dst); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func vsaveCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "vsave filename [path...]",
		Short:              dexter.Descriptions["vsave"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				fmt.Println("vsave: expected at least a filename")
				return nil
			}
			if err := iface.Vsave(args[0], args[1:]); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func vloadCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "vload filename [path...]",
		Short:              dexter.Descriptions["vload"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				fmt.Println("vload: expected at least a filename")
				return nil
			}
			if err := iface.Vload(args[0], args[1:]); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func dinitCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "dinit",
		Short: dexter.Descriptions["dinit"],
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := iface.Dinit()
			if err != nil {
				fmt.Println(err)
				return nil
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func deventCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "devent docname content-json",
		Short:              dexter.Descriptions["devent"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				fmt.Println("devent: expected docname and content")
				return nil
			}
			if err := iface.Devent(args[0], args[1]); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func dexportCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "dexport docname filename",
		Short: dexter.Descriptions["dexport"],
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := iface.Dexport(args[0], args[1]); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func dvexportCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:                "dvexport docname [path...]",
		Short:              dexter.Descriptions["dvexport"],
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				fmt.Println("dvexport: expected a docname")
				return nil
			}
			if err := iface.Dvexport(args[0], args[1:]); err != nil {
				fmt.Println(err)
			}
			return nil
		},
	}
}

func dgetLatestCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "dget_latest docname",
		Short: dexter.Descriptions["dget_latest"],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := iface.DgetLatest(args[0])
			if err != nil {
				fmt.Println(err)
				return nil
			}
			fmt.Println(strconv.FormatUint(version, 10))
			return nil
		},
	}
}

func freadCmd(iface *dexter.Interface) *cobra.Command {
	return &cobra.Command{
		Use:   "fread filename",
		Short: dexter.Descriptions["fread"],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Println(err)
				return nil
			}
			root := buildRoot(iface)
			for _, line := range strings.Split(string(data), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				fmt.Println(prompt + line)
				root.SetArgs(strings.Fields(line))
				if err := root.Execute(); err != nil {
					fmt.Println(err)
				}
			}
			return nil
		},
	}
}

func fwriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fwrite filename",
		Short: dexter.Descriptions["fwrite"],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The msglog view isn't captured anywhere persistent in
			// this port, so fwrite has nothing of its own to flush —
			// recorded as a known gap, not silently dropped.
			fmt.Println("fwrite: nothing buffered to write in this view")
			return nil
		},
	}
}

// splitOnSeparator splits args on a literal "--", the way vclone
// distinguishes its source path from its destination path.
func splitOnSeparator(args []string) (before, after []string, ok bool) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:], true
		}
	}
	return nil, nil, false
}
