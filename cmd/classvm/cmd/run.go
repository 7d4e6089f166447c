/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacobin-vm/classvm/internal/classloader"
	"github.com/jacobin-vm/classvm/internal/interp"
	"github.com/jacobin-vm/classvm/internal/native"
	"github.com/jacobin-vm/classvm/internal/trace"
	"github.com/jacobin-vm/classvm/internal/vmerr"
)

var (
	stdRoot string
	cpRoots []string
	xFlags  []string
)

// runCmd implements spec.md §6's "Recognized subcommand invocation:
// run [CLASSES...] [-X key=value]... [--std PATH] [--cp PATH]... [-- ARGS...]".
var runCmd = &cobra.Command{
	Use:   "run CLASSES... [-- ARGS...]",
	Short: "Run one or more classes' main method to completion",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&stdRoot, "std", "", "standard-library class-file search root")
	runCmd.Flags().StringArrayVar(&cpRoots, "cp", nil, "additional class-file search root (repeatable)")
	runCmd.Flags().StringArrayVarP(&xFlags, "xopt", "X", nil, "VM option key=value (repeatable)")
}

// vmOptions is the parsed form of the four -X keys spec.md §6 recognizes.
type vmOptions struct {
	testInit         bool
	testBoot         bool
	testThrowInternal bool
	maxStack         int
}

func parseXFlags(flags []string) (vmOptions, error) {
	var opts vmOptions
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return opts, fmt.Errorf("classvm: -X %s: expected key=value", f)
		}
		switch key {
		case "test.init":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return opts, fmt.Errorf("classvm: -X test.init: %w", err)
			}
			opts.testInit = b
		case "test.boot":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return opts, fmt.Errorf("classvm: -X test.boot: %w", err)
			}
			opts.testBoot = b
		case "test.throwinternal":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return opts, fmt.Errorf("classvm: -X test.throwinternal: %w", err)
			}
			opts.testThrowInternal = b
		case "vm.maxstack":
			n, err := strconv.Atoi(value)
			if err != nil {
				return opts, fmt.Errorf("classvm: -X vm.maxstack: %w", err)
			}
			opts.maxStack = n
		default:
			return opts, fmt.Errorf("classvm: -X %s: unrecognized option", key)
		}
	}
	return opts, nil
}

// toInternalName accepts either a dotted name (java.lang.String) or
// already-internal form (java/lang/String), matching how class names are
// usually typed on a command line versus how the loader indexes them.
func toInternalName(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return strings.ReplaceAll(name, ".", "/")
}

func runRun(cmd *cobra.Command, args []string) error {
	dash := cmd.Flags().ArgsLenAtDash()
	classes, guestArgs := args, []string(nil)
	if dash >= 0 {
		classes, guestArgs = args[:dash], args[dash:]
	}
	if len(classes) == 0 {
		return fmt.Errorf("classvm: run requires at least one class")
	}

	opts, err := parseXFlags(xFlags)
	if err != nil {
		return err
	}
	if opts.testThrowInternal {
		// spec.md §6 "-X test.throwinternal: inject a fatal host-level
		// error before main, for diagnostics testing".
		err := vmerr.Faultf("classvm: test.throwinternal requested a fatal host-level error before main")
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		exitCode = 1
		return nil
	}

	loader := classloader.NewLoader()
	if stdRoot != "" {
		loader.AddRoot(stdRoot)
	}
	for _, root := range cpRoots {
		loader.AddRoot(root)
	}
	if stdRoot == "" && len(cpRoots) == 0 {
		loader.AddRoot(".")
	}

	boot, err := loader.Bootstrap()
	if err != nil {
		return err
	}

	vm := interp.New(loader, boot, opts.maxStack, trace.Logger())

	if opts.testBoot {
		if err := bootSystem(loader, vm); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			exitCode = 1
			return nil
		}
	}

	failed := false
	for _, name := range classes {
		internalName := toInternalName(name)
		class, err := loader.ForName(internalName)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			failed = true
			continue
		}
		if opts.testInit {
			class.Native = native.NewDebugModule(internalName)
		}
		if err := vm.RunMain(class, guestArgs); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			failed = true
		}
	}

	if failed {
		exitCode = 1
	}
	return nil
}

// bootSystem runs java/lang/System.initPhase1() before main, wiring the
// two standard-library native bindings this VM implements (spec.md §6
// "-X test.boot: run java/lang/System.initPhase1() before main").
func bootSystem(loader *classloader.Loader, vm *interp.Interpreter) error {
	sys, err := loader.ForName("java/lang/System")
	if err != nil {
		return vmerr.Fault(err)
	}
	out, err := loader.ForName("java/io/PrintStream")
	if err != nil {
		return vmerr.Fault(err)
	}

	registry := native.NewRegistry()
	native.InstallStdlib(registry, sys, out)
	registry.Attach(sys)
	registry.Attach(out)

	method, ok := sys.MethodByNameAndDescriptor("initPhase1", "()V")
	if !ok {
		return vmerr.Faultf("classvm: java/lang/System declares no initPhase1()V")
	}
	_, _, err = vm.RunMethod(sys, method, nil)
	return err
}
