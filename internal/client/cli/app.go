package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/atlasmessenger/internal/client/layer"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/models"
)

// Controller is the part of controller.LayerController the CLI drives.
type Controller interface {
	State() models.State
	Session() *models.Session
	AppID() string
	Subscribe(o any) func()

	SetAppID(ctx context.Context, appID string, done func(models.State, error))

	Authenticate(ctx context.Context, creds models.Credentials, done func(*layer.Session, error))
	Register(ctx context.Context, creds models.Credentials, done func(*layer.Session, error))
	Deauthenticate(ctx context.Context, done func(error))
	HandleRemoteNotification(ctx context.Context, payload map[string]any, done func(bool, error))
	UpdateRemoteNotificationDeviceToken(ctx context.Context, token []byte, done func(error))
}

type App struct {
	ctrl   Controller
	reader *bufio.Reader
	out    io.Writer
}

// NewApp builds an App reading commands from in.
func NewApp(ctrl Controller, in io.Reader) *App {
	return &App{ctrl: ctrl, reader: bufio.NewReader(in), out: os.Stdout}
}

// Run subscribes to the controller, hands it appID unless one is already
// set, and blocks in the REPL until the user exits or input ends. Subscribing
// first lets the startup connection events and the restored state reach the
// screen.
func (a *App) Run(ctx context.Context, appID string) error {
	unsubscribe := a.ctrl.Subscribe(a)
	defer unsubscribe()

	if appID != "" && a.ctrl.State() == models.StateAppIDNotSet {
		done := make(chan error, 1)
		a.ctrl.SetAppID(ctx, appID, func(_ models.State, err error) { done <- err })
		if err := <-done; err != nil {
			printlnFn("Startup failed:", describe(err))
			return err
		}
	}

	printlnFn("Welcome to Atlas Messenger (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) isLoggedIn() bool {
	return a.ctrl.State() == models.StateAuthenticated
}

func (a *App) status() string {
	s := a.ctrl.State().String()
	if sess := a.ctrl.Session(); sess != nil {
		s = sess.User.Email + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

// StateChanged implements controller.StateObserver.
func (a *App) StateChanged(from, to models.State) {
	printlnFn(fmt.Sprintf("[state] %s -> %s", from, to))
}

// ConnectionChanged implements controller.ConnectionObserver.
func (a *App) ConnectionChanged(ev layer.Event) {
	if ev.Err != nil {
		printlnFn(fmt.Sprintf("[connection] %s: %v", ev.Kind, ev.Err))
		return
	}
	printlnFn(fmt.Sprintf("[connection] %s", ev.Kind))
}

// ControllerError implements controller.ErrorObserver.
func (a *App) ControllerError(err error) {
	printlnFn("[error]", err)
}

// NotificationReceived implements controller.NotificationObserver.
func (a *App) NotificationReceived(res *layer.NotificationResult) {
	if res.Message == nil || res.Conversation == nil {
		return
	}
	printlnFn(fmt.Sprintf("[message] %s in %s: %s", res.Message.SenderID, res.Conversation.ID, res.Message.Text))
}
