package cli

import (
	"context"
	"encoding/hex"
	"fmt"
)

// Status prints the controller state and the signed-in user.
func (a *App) Status(_ context.Context) error {
	printlnFn("App ID:", a.ctrl.AppID())
	printlnFn("State: ", a.ctrl.State())
	if s := a.ctrl.Session(); s != nil {
		printlnFn("User:  ", s.User.DisplayName(), "<"+s.User.Email+">")
		printlnFn("Since: ", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// Notify simulates a remote notification for a conversation and message.
func (a *App) Notify(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: notify <conversation> <message>")
		return fmt.Errorf("notify: want 2 arguments, got %d", len(args))
	}

	payload := map[string]any{
		"layer": map[string]any{
			"conversation_identifier": args[0],
			"message_identifier":      args[1],
		},
	}

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	a.ctrl.HandleRemoteNotification(ctx, payload, func(ok bool, err error) { done <- result{ok, err} })

	r := <-done
	switch {
	case r.err != nil:
		printlnFn("Notification failed:", describe(r.err))
		return r.err
	case !r.ok:
		printlnFn("Notification not recognized")
	default:
		printlnFn("Notification handled")
	}
	return nil
}

// DeviceToken registers a hex-encoded push device token.
func (a *App) DeviceToken(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: devicetoken <hex>")
		return fmt.Errorf("devicetoken: want 1 argument, got %d", len(args))
	}

	token, err := hex.DecodeString(args[0])
	if err != nil {
		printlnFn("Device token must be hex:", err)
		return err
	}

	done := make(chan error, 1)
	a.ctrl.UpdateRemoteNotificationDeviceToken(ctx, token, func(err error) { done <- err })
	if err := <-done; err != nil {
		printlnFn("Device token update failed:", describe(err))
		return err
	}

	printlnFn("Device token updated")
	return nil
}
