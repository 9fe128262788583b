//go:build wasip1

// Mock guest for testing session logic without the real interpreter. It
// keeps the namespace rules of language/python/bootstrap.py: the names bound
// at startup are protected, reset deletes everything else and restores
// protected names, and the checker sees a read-only view of the user
// bindings that are not underscore names.
//
// Build with: GOOS=wasip1 GOARCH=wasm go build -o mock.wasm .
//
// exec runs one statement per line:
//
//	raise <msg>        fail with msg
//	loop               never return
//	del <name>         unbind name
//	show <name>        print the value of name, or <unbound>
//	<name> = <value>   bind name
//	anything else      echoed to stdout
//
// check calls the global check by its value: "fail" raises, "mutate" writes
// to the view, "show" prints the view's names. Anything else accepts.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
)

type command struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type namespace struct {
	globals   map[string]string
	protected map[string]bool
	originals map[string]string
}

func newNamespace() *namespace {
	ns := &namespace{globals: map[string]string{
		"__name__":        "__main__",
		"__builtins__":    "builtins",
		"_gradebox_reset": "reset",
	}}
	ns.protected = map[string]bool{"_gradebox_protected": true}
	for name := range ns.globals {
		ns.protected[name] = true
	}
	ns.globals["_gradebox_protected"] = "protected"
	ns.originals = maps.Clone(ns.globals)
	return ns
}

func (ns *namespace) reset() {
	for name := range ns.globals {
		if !ns.protected[name] {
			delete(ns.globals, name)
		}
	}
	maps.Copy(ns.globals, ns.originals)
}

func (ns *namespace) userNames() []string {
	var names []string
	for name := range ns.globals {
		if !ns.protected[name] {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// view is what the checker receives.
func (ns *namespace) view() []string {
	var names []string
	for _, name := range ns.userNames() {
		if !strings.HasPrefix(name, "_") {
			names = append(names, name)
		}
	}
	return names
}

func (ns *namespace) exec(code string) error {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == "loop":
			for {
			}
		case strings.HasPrefix(line, "raise "):
			return fmt.Errorf("%s", strings.TrimPrefix(line, "raise "))
		case strings.HasPrefix(line, "del "):
			name := strings.TrimPrefix(line, "del ")
			if _, ok := ns.globals[name]; !ok {
				return fmt.Errorf("NameError: name '%s' is not defined", name)
			}
			delete(ns.globals, name)
		case strings.HasPrefix(line, "show "):
			value, ok := ns.globals[strings.TrimPrefix(line, "show ")]
			if !ok {
				value = "<unbound>"
			}
			fmt.Println(value)
		case strings.Contains(line, " = "):
			name, value, _ := strings.Cut(line, " = ")
			ns.globals[name] = value
		default:
			fmt.Println(line)
		}
	}
	return nil
}

func (ns *namespace) check() (bool, error) {
	mode, ok := ns.globals["check"]
	if !ok {
		return false, nil
	}
	switch mode {
	case "fail":
		return true, fmt.Errorf("AssertionError: checker rejected")
	case "mutate":
		return true, fmt.Errorf("TypeError: 'mappingproxy' object does not support item assignment")
	case "show":
		fmt.Println(strings.Join(ns.view(), ","))
	}
	return true, nil
}

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return
	}
	var hello command
	if err := json.Unmarshal(scanner.Bytes(), &hello); err != nil {
		return
	}
	prefix := "\x00GRADEBOX:" + hello.Token + ":"
	signal := func(kind, payload string) {
		fmt.Fprint(os.Stderr, prefix+kind+":"+payload+"\x00")
	}

	ns := newNamespace()
	signal("READY", "")

	for scanner.Scan() {
		var cmd command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}

		var (
			result any
			err    error
		)
		switch cmd.Type {
		case "exit":
			return
		case "exec":
			err = ns.exec(cmd.Code)
		case "reset":
			ns.reset()
		case "bind":
			ns.globals[cmd.Name] = cmd.Value
		case "check":
			result, err = ns.check()
		case "globals":
			result = ns.userNames()
		default:
			err = fmt.Errorf("ValueError: unknown command '%s'", cmd.Type)
		}

		if err != nil {
			signal("ERROR", err.Error())
			continue
		}
		data, _ := json.Marshal(result)
		signal("DONE", string(data))
	}
}
