package classify

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

var (
	frameSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	frameDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Frame serializes the fields into an ethernet frame that Extract decodes
// back into the same fields, except InIface.
//
// TCP, UDP and SCTP get their ports; other protocols get a bare IP header.
func Frame(fields *Fields) ([]byte, error) {
	src, dst := fields.Src.Addr().Unmap(), fields.Dst.Addr().Unmap()
	if !src.IsValid() || !dst.IsValid() {
		return nil, fmt.Errorf("source and destination addresses are required")
	}
	if src.Is4() != dst.Is4() {
		return nil, fmt.Errorf("address family mismatch: %s and %s", src, dst)
	}

	eth := &layers.Ethernet{
		SrcMAC:       frameSrcMAC,
		DstMAC:       frameDstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}
	proto := layers.IPProtocol(fields.Proto)

	var ip interface {
		gopacket.SerializableLayer
		gopacket.NetworkLayer
	}
	if src.Is4() {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip = &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
	} else {
		ip = &layers.IPv6{
			Version:    6,
			NextHeader: proto,
			HopLimit:   64,
			SrcIP:      net.IP(src.AsSlice()),
			DstIP:      net.IP(dst.AsSlice()),
		}
	}

	lyrs := []gopacket.SerializableLayer{eth, ip}
	switch proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(fields.Src.Port()),
			DstPort: layers.TCPPort(fields.Dst.Port()),
			SYN:     true,
			Window:  1024,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		lyrs = append(lyrs, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(fields.Src.Port()),
			DstPort: layers.UDPPort(fields.Dst.Port()),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		lyrs = append(lyrs, udp)
	case layers.IPProtocolSCTP:
		lyrs = append(lyrs, &layers.SCTP{
			SrcPort: layers.SCTPPort(fields.Src.Port()),
			DstPort: layers.SCTPPort(fields.Dst.Port()),
		})
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses an ethernet frame received on the given interface.
func Decode(frame []byte, inIface int) gopacket.Packet {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	pkt.Metadata().InterfaceIndex = inIface

	return pkt
}
