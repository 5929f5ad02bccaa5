package filter

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/mr-tron/base58"
)

var (
	ErrUnknownKind = errors.New("unknown filter kind")
	ErrInvalidArgs = errors.New("invalid filter arguments")
)

// Spec names a built-in filter and its arguments, as written in a crawl plan.
type Spec struct {
	Kind string            `yaml:"kind" json:"kind"`
	Args map[string]string `yaml:"args,omitempty" json:"args,omitempty"`
}

type txBuilder func(args map[string]string) (TxFilter, error)
type ixBuilder func(args map[string]string) (IxFilter, error)

var txKinds = map[string]txBuilder{
	"success_only": func(map[string]string) (TxFilter, error) {
		return SuccessOnly(), nil
	},
	"has_program_id": func(args map[string]string) (TxFilter, error) {
		a, err := addressArg(args, "address")
		if err != nil {
			return nil, err
		}
		return HasProgramID(a), nil
	},
	"has_signer": func(args map[string]string) (TxFilter, error) {
		a, err := addressArg(args, "address")
		if err != nil {
			return nil, err
		}
		return HasSigner(a), nil
	},
	"log_excludes": func(args map[string]string) (TxFilter, error) {
		s, err := stringArg(args, "substring")
		if err != nil {
			return nil, err
		}
		return LogExcludes(s), nil
	},
	"block_time_range": func(args map[string]string) (TxFilter, error) {
		from, err := timeArg(args, "from")
		if err != nil {
			return nil, err
		}
		to, err := timeArg(args, "to")
		if err != nil {
			return nil, err
		}
		if !from.IsZero() && !to.IsZero() && !from.Before(to) {
			return nil, fmt.Errorf("%w: from %s is not before to %s", ErrInvalidArgs, from, to)
		}
		return BlockTimeRange(from, to), nil
	},
}

var ixKinds = map[string]ixBuilder{
	"program_id": func(args map[string]string) (IxFilter, error) {
		a, err := addressArg(args, "address")
		if err != nil {
			return nil, err
		}
		return ProgramID(a), nil
	},
	"account_count": func(args map[string]string) (IxFilter, error) {
		op := CountOp(strings.ToLower(args["op"]))
		if !op.Valid() {
			return nil, fmt.Errorf("%w: op %q", ErrInvalidArgs, args["op"])
		}
		n, err := intArg(args, "n")
		if err != nil {
			return nil, err
		}
		return AccountCount(op, n), nil
	},
	"account_count_range": func(args map[string]string) (IxFilter, error) {
		lo, err := intArg(args, "min")
		if err != nil {
			return nil, err
		}
		hi, err := intArg(args, "max")
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, fmt.Errorf("%w: min %d > max %d", ErrInvalidArgs, lo, hi)
		}
		return AccountCountRange(lo, hi), nil
	},
	"data_equals": func(args map[string]string) (IxFilter, error) {
		b, err := bytesArg(args)
		if err != nil {
			return nil, err
		}
		return DataEquals(b), nil
	},
	"data_prefix": func(args map[string]string) (IxFilter, error) {
		b, err := bytesArg(args)
		if err != nil {
			return nil, err
		}
		return DataPrefix(b), nil
	},
	"has_account": func(args map[string]string) (IxFilter, error) {
		a, err := addressArg(args, "address")
		if err != nil {
			return nil, err
		}
		return HasAccount(a), nil
	},
	"account_at": func(args map[string]string) (IxFilter, error) {
		idx, err := intArg(args, "index")
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: negative index %d", ErrInvalidArgs, idx)
		}
		a, err := addressArg(args, "address")
		if err != nil {
			return nil, err
		}
		return AccountAt(idx, a), nil
	},
}

// NewTxFilter builds a built-in transaction filter from spec.
func NewTxFilter(spec Spec) (TxFilter, error) {
	build, ok := txKinds[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: tx filter %q", ErrUnknownKind, spec.Kind)
	}
	f, err := build(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("tx filter %s: %w", spec.Kind, err)
	}
	return f, nil
}

// NewIxFilter builds a built-in instruction filter from spec.
func NewIxFilter(spec Spec) (IxFilter, error) {
	build, ok := ixKinds[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: ix filter %q", ErrUnknownKind, spec.Kind)
	}
	f, err := build(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("ix filter %s: %w", spec.Kind, err)
	}
	return f, nil
}

// TxKinds lists the registered transaction filter kinds.
func TxKinds() []string { return sortedKeys(txKinds) }

// IxKinds lists the registered instruction filter kinds.
func IxKinds() []string { return sortedKeys(ixKinds) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringArg(args map[string]string, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidArgs, key)
	}
	return v, nil
}

func addressArg(args map[string]string, key string) (model.Address, error) {
	v, err := stringArg(args, key)
	if err != nil {
		return model.Address{}, err
	}
	a, err := model.ParseAddress(v)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, key, err)
	}
	return a, nil
}

func intArg(args map[string]string, key string) (int, error) {
	v, err := stringArg(args, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, key, err)
	}
	return n, nil
}

// timeArg parses an optional RFC3339 timestamp.
func timeArg(args map[string]string, key string) (time.Time, error) {
	v := args[key]
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, key, err)
	}
	return t, nil
}

// bytesArg reads instruction data given as either "hex" or "base58".
func bytesArg(args map[string]string) ([]byte, error) {
	if v, ok := args["hex"]; ok {
		b, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: hex: %v", ErrInvalidArgs, err)
		}
		return b, nil
	}
	if v, ok := args["base58"]; ok {
		b, err := base58.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: base58: %v", ErrInvalidArgs, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: one of \"hex\" or \"base58\" is required", ErrInvalidArgs)
}
