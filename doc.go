// Package courier provides a composable channel messaging ledger for Go
// applications.
//
// Courier is designed as a library, not a service. Import it directly into
// your Go application and put it behind whatever transport you already
// run. It provides:
//
//   - Named channels with free or pay-to-join access control
//   - An append-only per-channel message log with strictly increasing ids
//   - Message tipping with per-recipient withdrawable balances
//   - Exact money conservation between recorded tips and balances
//   - Durable withdrawal payouts with automatic failure compensation
//   - Pluggable lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/courier"
//	    "github.com/xraph/courier/store/memory"
//	)
//
//	eng := courier.New(memory.New())
//
//	// Start the engine (migrates the store, begins background workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Channels gate participation behind an access rule:
//
//	// Public channel: everyone has implicit access.
//	general, err := eng.CreateChannel(ctx, "alice", "general", false, courier.Money{})
//
//	// Private channel: joining costs exactly the access price,
//	// paid to the creator.
//	vip, err := eng.CreateChannel(ctx, "alice", "vip", true, courier.USD(1000))
//	err = eng.JoinChannel(ctx, "bob", vip, courier.USD(1000))
//
// Messages are appended against a channel and can be tipped by anyone but
// their sender; tips accumulate into the sender's withdrawable balance:
//
//	msgID, err := eng.SendMessage(ctx, "bob", general, "hello")
//	_, err = eng.TipMessage(ctx, "alice", general, msgID, courier.USD(500))
//
//	p, err := eng.Withdraw(ctx, "bob") // p.Amount == $5.00
//
// Every operation takes an already-authenticated caller identity; wallet
// connection, signing and rendering live outside the ledger.
package courier
