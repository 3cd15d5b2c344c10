// Licensed under the MIT License. See LICENSE file in the project root for details.

package kvstore

import "github.com/kianostad/scee/internal/engine/closure"

// The three operations the case-study workload exposes, each identified by
// its own Tag so the dispatch table can tell their logged records apart.
const (
	TagGet closure.Tag = 1
	TagSet closure.Tag = 2
	TagDel closure.Tag = 3
)

// GetArgs, SetArgs and DelArgs are the per-invocation argument structs
// logged alongside each operation's tag. They hold only fixed-size,
// pointer-free fields so they ride through the log as raw bytes.
type GetArgs struct{ Key Key }
type SetArgs struct {
	Key Key
	Val Val
}
type DelArgs struct{ Key Key }

// AppGet and ValGet are the app-side and validator-side functions for a
// dual-executed get. Both simply read the currently published value; they
// are identical because a get has no side effect to double-apply. A
// mismatch between the two calls means either a genuine computational
// fault in the hashing or chain-walk logic, or — far more commonly — a
// concurrent set or del landing on the same key between the two reads.
// Both closures.go and the design notes treat the latter as expected noise
// rather than corruption.
func (s *Store) AppGet(a GetArgs) Value { return s.GetValue(a.Key) }
func (s *Store) ValGet(a GetArgs) Value { return s.GetValue(a.Key) }

// AppSet performs the real store mutation for a dual-executed set and
// returns the value now published under the key. ValSet does not repeat
// the mutation — it only confirms what landed, exactly the way AppGet and
// ValGet only read.
//
// An earlier version made ValSet a second literal call to Set, mirroring
// AppDel/ValDel. That does not work for Set the way it does for Del: a
// key's very first write has the app call observe the key absent (and
// report Created), while the validator's later replay runs against state
// the app call already mutated, finds the key present, and reports Stored
// — a guaranteed mismatch on every single key's first write, not a rare
// edge case, since new keys are the common case in steady-state traffic.
// Del could be made idempotent so replaying it twice always agrees (see
// Del's doc comment); Set's Created/Stored distinction has no equivalent
// fix, because "this call is the one that created the key" is a one-time
// existence transition, not a state Set could be redefined to report
// idempotently. So the distinction is kept out of the validated closure
// entirely: AppSet/ValSet validate only that the write landed with the
// right bytes, and the Created/Stored classification for the wire
// protocol is decided separately, by a plain (unvalidated) existence check
// taken before the closure runs — see internal/server's dispatch.
func (s *Store) AppSet(a SetArgs) Value {
	s.Set(a.Key, a.Val)
	return s.GetValue(a.Key)
}

func (s *Store) ValSet(a SetArgs) Value {
	return s.GetValue(a.Key)
}

// AppDel and ValDel are likewise the same function: Del was specifically
// made idempotent (see Del's doc comment) so that replaying it a second
// time during validation always agrees with the first.
func (s *Store) AppDel(a DelArgs) DelResult { return s.Del(a.Key) }
func (s *Store) ValDel(a DelArgs) DelResult { return s.Del(a.Key) }
