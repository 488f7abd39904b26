// Package cli implements the depreg command line.
//
// Every command reads its configuration through pkg/config, so the storage
// backend is chosen with DEPREG_* environment variables or a YAML file passed
// with -config. Results are printed to stdout as JSON.
//
//	depreg register -key Contoso.Runtime -version 2.1.0.0 -display-name "Contoso Runtime"
//	depreg register-dependent -key Contoso.Runtime -dependent App.One -min 2.0
//	depreg check -key Contoso.Runtime -min 2.0 -max 3.0
//	depreg check-dependents -key Contoso.Runtime -ignore App.One
//	depreg unregister-dependent -key Contoso.Runtime -dependent App.One
//	depreg unregister -key Contoso.Runtime
//	depreg serve -listen :8080
//
// A check against a provider that is not registered prints {"found": false}
// and succeeds. Every other failure is returned to the caller, and the depreg
// binary exits non-zero.
package cli
