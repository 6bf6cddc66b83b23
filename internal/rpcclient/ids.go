package rpcclient

import (
	"encoding/hex"

	"github.com/seedhook/seedhook/internal/apperr"
)

// IDs is the tagged union spec.md §4.E and §9 call for, replacing
// Transmission's duck-typed "int | []int|string | 'recently-active'"
// argument with three explicit, validated variants.
type IDs struct {
	kind   idKind
	single int64
	list   []interface{} // each element is int64 or string (40-hex SHA-1)
}

type idKind int

const (
	idKindNone idKind = iota
	idKindSingle
	idKindList
	idKindRecentlyActive
)

// AllIDs omits the ids argument entirely (every torrent).
func AllIDs() IDs { return IDs{kind: idKindNone} }

// RecentlyActive is the "recently-active" sentinel.
func RecentlyActive() IDs { return IDs{kind: idKindRecentlyActive} }

// ID wraps a single non-negative torrent id.
func ID(id int64) IDs { return IDs{kind: idKindSingle, single: id} }

// IDList wraps a mix of integer ids and 40-hex SHA-1 hash strings.
func IDList(ids ...interface{}) IDs { return IDs{kind: idKindList, list: ids} }

// Validate checks every element per spec.md §4.E: integers must be >= 0,
// strings must be 40 hex characters, and the literal "recently-active" is
// accepted as a whole.
func (ids IDs) Validate() error {
	switch ids.kind {
	case idKindNone, idKindRecentlyActive:
		return nil
	case idKindSingle:
		return validateOne(ids.single)
	case idKindList:
		for _, v := range ids.list {
			if err := validateElem(v); err != nil {
				return err
			}
		}
		return nil
	default:
		return apperr.Wrapf(apperr.ErrInvalidID, "unknown id kind")
	}
}

func validateElem(v interface{}) error {
	switch x := v.(type) {
	case int:
		return validateOne(int64(x))
	case int64:
		return validateOne(x)
	case string:
		return validateHash(x)
	default:
		return apperr.Wrapf(apperr.ErrInvalidID, "unsupported id type %T", v)
	}
}

func validateOne(id int64) error {
	if id < 0 {
		return apperr.Wrapf(apperr.ErrInvalidID, "negative torrent id %d", id)
	}
	return nil
}

func validateHash(s string) error {
	if len(s) != 40 {
		return apperr.Wrapf(apperr.ErrInvalidID, "id %q is not a 40-char SHA-1 hash", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return apperr.Wrapf(apperr.ErrInvalidID, "id %q is not valid hex", s)
	}
	return nil
}

// argument returns the value to place under "ids" in the RPC request
// arguments, or nil if ids should be omitted.
func (ids IDs) argument() interface{} {
	switch ids.kind {
	case idKindNone:
		return nil
	case idKindRecentlyActive:
		return "recently-active"
	case idKindSingle:
		return ids.single
	case idKindList:
		return ids.list
	default:
		return nil
	}
}
