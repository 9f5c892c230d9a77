// Command uetr is a small operator tool for working with gateway payment
// identifiers: validate one, decode its segments, or mint a test identifier.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/clearfab/gateway/internal/uetr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "validate":
		if len(args) != 2 {
			usage()
			return 2
		}
		if !uetr.Validate(args[1]) {
			fmt.Println("INVALID")
			return 1
		}
		fmt.Println("VALID")
		return 0

	case "decode":
		if len(args) != 2 {
			usage()
			return 2
		}
		id := args[1]
		if !uetr.Validate(id) {
			fmt.Fprintf(os.Stderr, "malformed identifier %q\n", id)
			return 1
		}
		fmt.Printf("date:          %s\n", uetr.Timestamp(id))
		fmt.Printf("system:        %s\n", uetr.SystemID(id))
		fmt.Printf("message type:  %s\n", uetr.MessageTypeCode(id))
		return 0

	case "mint":
		fs := flag.NewFlagSet("mint", flag.ContinueOnError)
		systemID := fs.String("system", "GW01", "4-character system id segment")
		messageType := fs.String("type", "pain.001", "ISO message type")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		gen := uetr.NewGenerator(*systemID)
		fmt.Println(gen.Generate(*messageType))
		return 0

	case "related":
		if len(args) != 3 {
			usage()
			return 2
		}
		if uetr.AreRelated(args[1], args[2]) {
			fmt.Println("RELATED")
			return 0
		}
		fmt.Println("UNRELATED")
		return 1

	default:
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  uetr validate <uetr>
  uetr decode <uetr>
  uetr mint [-system GW01] [-type pain.001]
  uetr related <uetr-a> <uetr-b>`)
}
