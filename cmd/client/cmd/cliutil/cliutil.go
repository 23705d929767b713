// Package cliutil holds helpers shared by the client commands.
package cliutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"posclient/internal/app/client"
)

type appKey struct{}

// JSONOutput switches command output to JSON.
var JSONOutput bool

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// WithApp stores the application on ctx.
func WithApp(ctx context.Context, app *client.App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// App returns the application set up by the root command.
func App(cmd *cobra.Command) (*client.App, error) {
	app, ok := cmd.Context().Value(appKey{}).(*client.App)
	if !ok || app == nil {
		return nil, errors.New("application is not initialised")
	}
	return app, nil
}

func Success(format string, a ...any) {
	successColor.Fprintf(os.Stdout, format+"\n", a...)
}

func Warn(format string, a ...any) {
	warnColor.Fprintf(os.Stdout, format+"\n", a...)
}

// PrintError writes the one-line error message every command failure ends with.
func PrintError(w io.Writer, err error) {
	errorColor.Fprintf(w, "error: %v\n", err)
}

// PrintJSON writes v indented to stdout.
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ParseAmounts parses key=amount arguments. Keys must be unique and amounts positive.
func ParseAmounts(args []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=amount", arg)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("argument %q: invalid amount", arg)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("argument %q: amount must not be negative", arg)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("argument %q: %s given twice", arg, key)
		}
		out[key] = amount
	}
	return out, nil
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
