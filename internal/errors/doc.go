// Package errors provides structured, actionable error messages for the
// roomctl command.
//
// Every error carries a code that maps to a registered template with a
// short message, a longer explanation and a documentation URL. Callers add
// context with WithDetail and a fix with WithSuggestion, and wrap the
// underlying cause so errors.Is and errors.As keep working.
//
// # Error Categories
//
//   - config: roomctl.json / roomctl.yaml problems
//   - connect: joining a room or connecting a resource
//   - state: rejected or malformed state writes
//   - archive: snapshot upload and download
//   - cli: command-line usage
//
// # Usage
//
//	err := errors.New("R120").
//	    WithDetail("No roomctl.json found in /srv/app").
//	    WithSuggestion("Run 'roomctl init' or pass --url and --room")
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// Output:
//	// ERROR R120: Config file not found
//	//
//	//   No roomctl.json found in /srv/app
//	//
//	//   Hint: Run 'roomctl init' or pass --url and --room
//	//
//	//   Learn more: https://vango.dev/docs/roomctl/errors/R120
package errors
