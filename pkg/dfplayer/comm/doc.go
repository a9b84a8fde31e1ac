// Package comm provides the DFPlayer serial protocol support.
package comm

// The DFPlayer protocol exchanges fixed 10-byte frames over a half-duplex
// UART link:
//
//	[0x7E][version][0x06][command][feedback][param_hi][param_lo][ck_hi][ck_lo][0xEF]
//
// The checksum is the 16-bit two's complement of the sum of version through
// param_lo. There is no request ID on the wire, so only one command may be
// in flight at a time and replies are correlated by command code.
//
// Link runs a single loop which owns all protocol state: it decodes inbound
// bytes, resolves the pending request or forwards unsolicited frames to a
// FrameHandler, and handles deadlines and retransmission.
//
// Producer: DFPlayer module
// Consumer: host driver
