package ignition

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/web3"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LookupFunc resolves environment variables referenced by module arguments.
type LookupFunc func(name string) string

// resolveArgs expands ${VAR} and @future references and converts the
// result to the ABI types of inputs.
func resolveArgs(inputs abi.Arguments, args []Arg, lookup LookupFunc, addresses map[string]common.Address) ([]any, []string, error) {
	raw := make([]string, len(args))
	for i, arg := range args {
		value, err := resolveArg(string(arg), lookup, addresses)
		if err != nil {
			return nil, nil, err
		}
		raw[i] = value
	}
	values, err := web3.CoerceArgs(inputs, raw)
	if err != nil {
		return nil, nil, err
	}
	return values, raw, nil
}

func resolveArg(arg string, lookup LookupFunc, addresses map[string]common.Address) (string, error) {
	if ref, ok := strings.CutPrefix(arg, "@"); ok {
		address, found := addresses[ref]
		if !found {
			return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("future %s has no deployed address yet", ref))
		}
		return address.Hex(), nil
	}

	var missing []string
	expanded := envPattern.ReplaceAllStringFunc(arg, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		value := ""
		if lookup != nil {
			value = lookup(name)
		}
		if value == "" {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("environment variable %s is not set", strings.Join(missing, ", ")))
	}
	return expanded, nil
}

func parseValue(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	wei, ok := new(big.Int).SetString(strings.ReplaceAll(value, "_", ""), 0)
	if !ok || wei.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid call value %q", value))
	}
	return wei, nil
}
