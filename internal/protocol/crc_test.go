// Licensed under the MIT License. See LICENSE file in the project root for details.

package protocol

import (
	"hash/crc32"
	"strconv"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConsumePrefixWithNoEnvelopePassesThrough(t *testing.T) {
	Convey("Given a line with no CRC envelope", t, func() {
		remainder, had, err := ConsumePrefix("set abcd 01234567\r\n")
		So(err, ShouldBeNil)
		So(had, ShouldBeFalse)
		So(remainder, ShouldEqual, "set abcd 01234567\r\n")
	})
}

func TestConsumePrefixWithMatchingCRCStripsEnvelope(t *testing.T) {
	Convey("Given a line with a correct CRC-32 prefix", t, func() {
		body := "set abcd 01234567\r\n"
		crc := crc32.ChecksumIEEE([]byte(body))
		line := strconv.FormatUint(uint64(crc), 10) + "#" + body

		remainder, had, err := ConsumePrefix(line)
		So(err, ShouldBeNil)
		So(had, ShouldBeTrue)
		So(remainder, ShouldEqual, body)
	})
}

func TestConsumePrefixWithMismatchedCRCIsAnError(t *testing.T) {
	Convey("Given a line with an incorrect CRC-32 prefix", t, func() {
		body := "set abcd 01234567\r\n"
		line := "15#" + body

		_, _, err := ConsumePrefix(line)
		So(err, ShouldNotBeNil)
	})
}

func TestConsumePrefixRejectsOverflowingPrefix(t *testing.T) {
	Convey("Given a CRC prefix that overflows a uint32", t, func() {
		line := "99999999999#set abcd 01234567\r\n"
		_, _, err := ConsumePrefix(line)
		So(err, ShouldNotBeNil)
	})
}

func TestConsumePrefixTreatsNonDigitLeadAsNoEnvelope(t *testing.T) {
	Convey("Given a line that merely contains a '#' but doesn't start with digits", t, func() {
		remainder, had, err := ConsumePrefix("get a#b\r\n")
		So(err, ShouldBeNil)
		So(had, ShouldBeFalse)
		So(remainder, ShouldEqual, "get a#b\r\n")
	})
}
