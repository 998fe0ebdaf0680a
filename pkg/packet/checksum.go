package packet

import "encoding/binary"

// IPv4Checksum computes the header checksum of hdr as if its checksum
// field were zero. The header length is taken from the IHL nibble.
func IPv4Checksum(hdr []byte) uint16 {
	hlen := int(hdr[0]&0x0f) * 4
	sum := uint32(0)
	for i := 0; i < hlen; i += 2 {
		if i == 10 {
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	return fold(sum)
}

// UDPChecksum computes the checksum of segment (UDP header plus data) with
// the IPv4 pseudo header taken from ipHdr. A result of zero is sent as
// 0xffff.
func UDPChecksum(ipHdr, segment []byte) uint16 {
	sum := uint32(0)

	// 疑似ヘッダー: Source IP, Destination IP, Protocol, UDP Length
	for i := 12; i < 20; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(ipHdr[i : i+2]))
	}
	sum += uint32(ipHdr[9])
	sum += uint32(len(segment))

	for i := 0; i < len(segment); i += 2 {
		if i == 6 {
			continue
		}
		if i+1 < len(segment) {
			sum += uint32(binary.BigEndian.Uint16(segment[i : i+2]))
		} else {
			sum += uint32(segment[i]) << 8
		}
	}

	csum := fold(sum)
	if csum == 0 {
		csum = 0xffff
	}
	return csum
}

// FixIPv4Checksum rewrites the IPv4 header checksum of the header starting
// at frame[off].
func FixIPv4Checksum(frame []byte, off int) {
	hdr := frame[off:]
	binary.BigEndian.PutUint16(hdr[10:12], IPv4Checksum(hdr))
}

// FixUDPChecksum rewrites the checksum of the UDP header at frame[udpOff]
// using the IPv4 header at frame[ipOff]. The segment length comes from the
// UDP length field so trailing padding is excluded.
func FixUDPChecksum(frame []byte, ipOff, udpOff int) {
	udp := frame[udpOff:]
	n := int(binary.BigEndian.Uint16(udp[4:6]))
	binary.BigEndian.PutUint16(udp[6:8], UDPChecksum(frame[ipOff:], udp[:n]))
}

func fold(sum uint32) uint16 {
	// キャリーを加算
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
