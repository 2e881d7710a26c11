package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// IntentCommand is the token/amount part of a parsed intent command; chains
// come from flags.
type IntentCommand struct {
	Amount       string
	DestTicker   string
	SourceTicker string
}

var commandPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)(?:\s+FROM\s+([A-Z0-9]+))?$`)

// ParseIntentCommand parses the free-form argument part of a deposit or
// withdraw command.
// Examples:
//   - "100 USDC"
//   - "1.5 ETH from WETH"
func ParseIntentCommand(command string) (*IntentCommand, error) {
	command = strings.TrimSpace(strings.ToUpper(command))

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid command format. Expected: '<amount> <token> [from <token>]' (e.g., '100 USDC' or '100 USDC from USDT')")
	}

	return &IntentCommand{
		Amount:       matches[1],
		DestTicker:   matches[2],
		SourceTicker: matches[3],
	}, nil
}

// NormalizeTicker normalizes token tickers to standard format
func NormalizeTicker(ticker string) string {
	return strings.TrimSpace(strings.ToUpper(ticker))
}
