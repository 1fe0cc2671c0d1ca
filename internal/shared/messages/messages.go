package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MessageText is a template with {placeholders}. Title and Body are joined
// by a newline when rendered.
type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Messages struct {
	BudgetReminder MessageText `json:"budget_reminder"`
}

var defaults = Messages{
	BudgetReminder: MessageText{
		Title: "BudgetTracker for {account}",
		Body:  "You have spent ${spent} of your ${threshold} budget threshold.",
	},
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Default returns the built-in message set.
func Default() *Messages {
	m := defaults
	return &m
}

// Load reads a messages JSON file and caches the result. Missing entries
// fall back to the defaults. An empty path yields the defaults.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	if path == "" {
		return Default(), nil
	}

	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		loaded = defaults
		if err := json.Unmarshal(data, &loaded); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
			return
		}
		if loaded.BudgetReminder.Title == "" {
			loaded.BudgetReminder.Title = defaults.BudgetReminder.Title
		}
		if loaded.BudgetReminder.Body == "" {
			loaded.BudgetReminder.Body = defaults.BudgetReminder.Body
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}

// FormatBudgetReminder renders the reminder for one tracker. Amounts are
// shown with exactly two decimals.
func (m *Messages) FormatBudgetReminder(accountName string, spent, threshold decimal.Decimal) string {
	r := strings.NewReplacer(
		"{account}", accountName,
		"{spent}", spent.StringFixed(2),
		"{threshold}", threshold.StringFixed(2),
	)
	return r.Replace(m.BudgetReminder.Title) + "\n" + r.Replace(m.BudgetReminder.Body)
}
