// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package protocol implements the case-study workload's wire format: an
// ASCII line protocol carrying set/get/del/quit commands, each optionally
// prefixed with a CRC-32 envelope, and a fixed reply vocabulary.
//
// The original implementation frames each command as a literal "set "/
// "get "/"del " prefix followed by raw, fixed-width key and value bytes at
// fixed offsets. This port keeps the command verbs and reply vocabulary but
// parses space-delimited ASCII tokens instead of raw byte offsets, per
// spec.md's own description of the workload as an ASCII line protocol
// (`set <key> <val>\r\n`) rather than a binary one.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kianostad/scee/internal/storage/kvstore"
)

// ErrProtocol reports a malformed request line. Per the error handling
// design, a protocol error never aborts the connection or enters the
// validated log — it is replied to with ReplyError and the connection stays
// open for the next request.
var ErrProtocol = errors.New("protocol: malformed request")

// Verb identifies the parsed command.
type Verb uint8

const (
	VerbError Verb = iota
	VerbSet
	VerbGet
	VerbDel
	VerbQuit
)

// Command is a fully parsed request line, ready to drive a kvstore
// operation.
type Command struct {
	Verb Verb
	Key  kvstore.Key
	Val  kvstore.Val
}

// Reply lines, verbatim from the original implementation's kRetVals table.
const (
	ReplyError    = "ERROR\r\n"
	ReplyDeleted  = "DELETED\r\n"
	ReplyNotFound = "NOT_FOUND\r\n"
	ReplyStored   = "STORED\r\n"
	ReplyCreated  = "CREATED\r\n"
	ReplyEnd      = "END\r\n"
	replyValue    = "VALUE "
)

// ValueReply formats a successful get's reply line.
func ValueReply(val kvstore.Val) string {
	return string(AppendValueReply(nil, val))
}

// AppendValueReply appends a successful get's reply line to dst and
// returns the extended slice, in the style of strconv.AppendInt: callers
// that already hold a scratch buffer (an arena allocation, say) can build
// the reply without an intermediate string allocation.
func AppendValueReply(dst []byte, val kvstore.Val) []byte {
	dst = append(dst, replyValue...)
	dst = append(dst, trimTrailingZeroBytes(val[:])...)
	dst = append(dst, '\r', '\n')
	return dst
}

// ParseCommand parses one request line (without its trailing "\n", and
// with any CRC-32 envelope already stripped by ConsumePrefix) into a
// Command. A malformed line, an unknown verb, or a key/value exceeding the
// store's fixed width is ErrProtocol.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrProtocol
	}

	switch fields[0] {
	case "quit":
		if len(fields) != 1 {
			return Command{}, ErrProtocol
		}
		return Command{Verb: VerbQuit}, nil

	case "get", "del":
		if len(fields) != 2 {
			return Command{}, ErrProtocol
		}
		key, err := encodeKey(fields[1])
		if err != nil {
			return Command{}, err
		}
		verb := VerbGet
		if fields[0] == "del" {
			verb = VerbDel
		}
		return Command{Verb: verb, Key: key}, nil

	case "set":
		if len(fields) != 3 {
			return Command{}, ErrProtocol
		}
		key, err := encodeKey(fields[1])
		if err != nil {
			return Command{}, err
		}
		val, err := encodeVal(fields[2])
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbSet, Key: key, Val: val}, nil

	default:
		return Command{}, ErrProtocol
	}
}

func encodeKey(s string) (kvstore.Key, error) {
	var k kvstore.Key
	if len(s) == 0 || len(s) > kvstore.KeySize {
		return k, fmt.Errorf("%w: key length %d exceeds %d", ErrProtocol, len(s), kvstore.KeySize)
	}
	copy(k[:], s)
	return k, nil
}

func encodeVal(s string) (kvstore.Val, error) {
	var v kvstore.Val
	if len(s) == 0 || len(s) > kvstore.ValSize {
		return v, fmt.Errorf("%w: value length %d exceeds %d", ErrProtocol, len(s), kvstore.ValSize)
	}
	copy(v[:], s)
	return v, nil
}

func trimTrailingZeroBytes(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
