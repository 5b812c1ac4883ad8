// Package cli is the atelier command tree.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/internal/app"
)

var errNotSignedIn = errors.New("not signed in, run `atelier login` first")

// env is shared by every command of one invocation.
type env struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	configDir   string
	apiURL      string
	logLevel    string
	downloadDir string

	appOpts []app.Option

	cfg app.Config
	app *app.Application
}

func newEnv(in io.Reader, out, errOut io.Writer) *env {
	return &env{in: bufio.NewReader(in), out: out, errOut: errOut}
}

// Execute runs the command tree against the process arguments.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := newEnv(os.Stdin, os.Stdout, os.Stderr)
	if err := e.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func (e *env) run(ctx context.Context, args []string) error {
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetIn(e.in)
	root.SetOut(e.out)
	root.SetErr(e.errOut)

	err := root.ExecuteContext(ctx)
	if cerr := e.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "atelier",
		Short:         "Atelier storefront and back-office client",
		Long:          `Browse the Atelier storefront and manage its catalog, content, inbox and users from the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configDir, "config", "", "directory holding atelier.yaml")
	flags.StringVar(&e.apiURL, "api-url", "", "backend base URL (overrides ATELIER_API_URL)")
	flags.StringVar(&e.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&e.downloadDir, "download-dir", "", "directory for CSV exports")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
		newStatusCmd(e),
		newStorefrontCmd(e),
		newChatCmd(e),
		newNavCmd(e),
		newDashboardCmd(e),
		newCategoriesCmd(e),
		newProductsCmd(e),
		newPartnersCmd(e),
		newTestimonialsCmd(e),
		newMessagesCmd(e),
		newUsersCmd(e),
		newSecurityCmd(e),
		newMFACmd(e),
		newSessionsCmd(e),
		newPasswordCmd(e),
		newDevServerCmd(e),
	)
	return root
}

func (e *env) loadConfig(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(e.configDir)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = e.apiURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = e.logLevel
	}
	if flags.Changed("download-dir") {
		cfg.DownloadDir = e.downloadDir
	}
	e.cfg = cfg
	return nil
}

// open builds the application and restores the stored session. Later
// calls return the same instance.
func (e *env) open(ctx context.Context) (*app.Application, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, err := app.New(e.cfg, e.appOpts...)
	if err != nil {
		return nil, err
	}
	if err := a.Open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	e.app = a
	return a, nil
}

// signedIn is open plus a check that a session exists.
func (e *env) signedIn(ctx context.Context) (*app.Application, error) {
	a, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	if !a.Session.IsAuthenticated() {
		return nil, errNotSignedIn
	}
	return a, nil
}

// permitted opens a signed-in session and checks one permission. When the
// check fails a notice is printed and ok is false; the API is not called.
func (e *env) permitted(ctx context.Context, resource, action string) (a *app.Application, ok bool, err error) {
	a, err = e.signedIn(ctx)
	if err != nil {
		return nil, false, err
	}
	if !a.Permissions.HasPermission(resource, action) {
		fmt.Fprintf(e.out, "You don't have permission to %s %s.\n", action, resource)
		return a, false, nil
	}
	return a, true, nil
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

// prompt reads one trimmed line after printing label.
func (e *env) prompt(label string) (string, error) {
	fmt.Fprint(e.errOut, label)
	line, err := e.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

// valueOrPrompt returns v, or asks for it when empty.
func (e *env) valueOrPrompt(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return e.prompt(label)
}
