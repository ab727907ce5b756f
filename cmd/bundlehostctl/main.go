// Command bundlehostctl is a small installer/lister exerciser for the
// bundle-host framework, grounded on the teacher's flag-based
// cmd/verify-bundle: a one-purpose CLI needs neither cobra nor viper, just
// flag.Parse and a handful of subcommands dispatched by name.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/arcforge/bundlehost/pkg/config"
	"github.com/arcforge/bundlehost/system/framework"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	fw, err := framework.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start framework: %v\n", err)
		os.Exit(1)
	}
	defer fw.Destroy()

	switch os.Args[1] {
	case "install":
		runInstall(fw, os.Args[2:])
	case "start":
		runStart(fw, os.Args[2:])
	case "stop":
		runStop(fw, os.Args[2:])
	case "uninstall":
		runUninstall(fw, os.Args[2:])
	case "purge":
		runPurge(fw, os.Args[2:])
	case "list":
		runList(fw, os.Args[2:])
	case "services":
		runServices(fw, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bundlehostctl <install|start|stop|uninstall|purge|list|services> [args]")
}

func runInstall(fw *framework.Framework, args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	location := fs.String("path", "", "path to a bundle zip")
	_ = fs.Parse(args)
	if *location == "" {
		fmt.Fprintln(os.Stderr, "install requires -path")
		os.Exit(1)
	}
	b, err := fw.Install(*location)
	if err != nil {
		fmt.Fprintf(os.Stderr, "install: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("installed bundle %d (%s)\n", b.ID(), b.Archive().Current().Manifest.SymbolicName)
}

func runStart(fw *framework.Framework, args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	id := fs.Int64("id", 0, "bundle id")
	_ = fs.Parse(args)
	if err := fw.Start(*id); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("started bundle %d\n", *id)
}

func runStop(fw *framework.Framework, args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	id := fs.Int64("id", 0, "bundle id")
	_ = fs.Parse(args)
	if err := fw.Stop(*id); err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("stopped bundle %d\n", *id)
}

func runUninstall(fw *framework.Framework, args []string) {
	fs := flag.NewFlagSet("uninstall", flag.ExitOnError)
	id := fs.Int64("id", 0, "bundle id")
	_ = fs.Parse(args)
	if err := fw.Uninstall(*id); err != nil {
		fmt.Fprintf(os.Stderr, "uninstall: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("uninstalled bundle %d\n", *id)
}

func runPurge(fw *framework.Framework, args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	location := fs.String("path", "", "bundle zip location to forget")
	_ = fs.Parse(args)
	if *location == "" {
		fmt.Fprintln(os.Stderr, "purge requires -path")
		os.Exit(1)
	}
	if err := fw.Purge(*location); err != nil {
		fmt.Fprintf(os.Stderr, "purge: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("purged %s\n", *location)
}

func runList(fw *framework.Framework, _ []string) {
	for _, b := range fw.Bundles() {
		name := "(system)"
		if b.Archive() != nil {
			name = b.Archive().Current().Manifest.SymbolicName
		}
		fmt.Printf("%d\t%s\t%s\n", b.ID(), b.State(), name)
	}
}

func runServices(fw *framework.Framework, args []string) {
	fs := flag.NewFlagSet("services", flag.ExitOnError)
	iface := fs.String("interface", "", "service interface name")
	filterExpr := fs.String("filter", "", "LDAP-style filter expression")
	_ = fs.Parse(args)
	if *iface == "" {
		fmt.Fprintln(os.Stderr, "services requires -interface")
		os.Exit(1)
	}
	ids, err := fw.Registry().Find(*iface, *filterExpr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "find: %v\n", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}
