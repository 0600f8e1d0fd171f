// cmd/generator/main.go
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"tinyimp/internal/bytecode"
	"tinyimp/internal/buildcache"
	"tinyimp/internal/codegen"
	"tinyimp/internal/parser"
)

const usage = `usage: generator <input> <output> [-cache <path>] [-stats]`

func main() {
	log.SetFlags(0)
	log.SetPrefix("generator: ")

	var input, output, cachePath string
	var stats bool

	var positional []string
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-cache":
			if i+1 >= len(args) {
				log.Fatal(usage)
			}
			i++
			cachePath = args[i]
		case "-stats":
			stats = true
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 2 {
		log.Fatal(usage)
	}
	input, output = positional[0], positional[1]

	if err := run(input, output, cachePath, stats); err != nil {
		log.Fatal(err)
	}
}

func run(input, output, cachePath string, stats bool) error {
	source, err := os.ReadFile(input)
	if err != nil {
		return errors.Wrapf(err, "reading %s", input)
	}

	var cache *buildcache.Cache
	if cachePath != "" {
		cache, err = buildcache.Open(cachePath)
		if err != nil {
			return errors.Wrap(err, "opening build cache")
		}
		defer cache.Close()
	}

	hash := buildcache.Hash(source)
	var text string
	var buildID string

	if cache != nil {
		entry, ok, err := cache.Lookup(context.Background(), hash)
		if err != nil {
			return errors.Wrap(err, "build cache lookup")
		}
		if ok {
			text, buildID = entry.Instructions, entry.BuildID
		}
	}

	var prog *bytecode.Program
	if text == "" {
		ast, err := parser.Parse(string(source))
		if err != nil {
			return err
		}
		prog, err = codegen.Generate(ast)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if _, err := prog.WriteTo(&buf); err != nil {
			return errors.Wrap(err, "rendering instructions")
		}
		text = buf.String()
		if cache != nil {
			buildID, err = cache.Store(context.Background(), hash, text)
			if err != nil {
				return errors.Wrap(err, "build cache store")
			}
		}
	}

	out, err := os.Create(output)
	if err != nil {
		return errors.Wrapf(err, "creating %s", output)
	}
	defer out.Close()
	if _, err := out.WriteString(text); err != nil {
		return errors.Wrapf(err, "writing %s", output)
	}

	if stats {
		printStats(prog, text, buildID)
	}
	return nil
}

// printStats prints a short post-build summary in the teacher's
// print-a-summary-after-building style. prog is nil on a cache hit, since
// no generation happened — the summary then reports only the cached text.
func printStats(prog *bytecode.Program, text, buildID string) {
	color := isatty.IsTerminal(os.Stdout.Fd())
	bold := func(s string) string {
		if !color {
			return s
		}
		return "\x1b[1m" + s + "\x1b[0m"
	}

	instrCount := 0
	constants := map[int64]bool{}
	if prog != nil {
		instrCount = prog.Len()
		for _, ins := range prog.Instructions {
			if ins.Op == bytecode.SET {
				constants[ins.Arg] = true
			}
		}
	}

	fmt.Println(bold("build summary"))
	if buildID != "" {
		fmt.Printf("  build id:       %s\n", buildID)
	}
	if prog != nil {
		fmt.Printf("  instructions:   %s\n", humanize.Comma(int64(instrCount)))
		fmt.Printf("  constant pool:  %s\n", humanize.Comma(int64(len(constants))))
	} else {
		fmt.Println("  instructions:   (served from build cache)")
	}
	fmt.Printf("  output size:    %s\n", humanize.Bytes(uint64(len(text))))
}
