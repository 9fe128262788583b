// Command gradebox vets, runs and grades untrusted Python code inside a
// WebAssembly interpreter.
package main

func main() {
	Execute()
}
