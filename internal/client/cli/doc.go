// Package cli provides the interactive Atlas Messenger command-line client.
//
// The App drives a LayerController from a small REPL: register, log in and
// out, inspect the session, and feed remote notifications or push device
// tokens to the messaging client. It subscribes to the controller and
// prints state, connection and error events as they arrive.
//
// Every command waits for the controller's completion callback before the
// prompt returns, so the UI never has two authentication attempts in flight.
//
// The REPL is started via App.Run(ctx, appID), which blocks until the user
// exits.
package cli
