// Package xpacket builds packets for tests.
package xpacket

import (
	"fmt"
	"net"
	"net/netip"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// LayersToPacket serializes the layers and parses them back as an ethernet
// frame.
func LayersToPacket(t *testing.T, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	pkt, err := LayersToPacketChecked(lyrs...)
	require.NoError(t, err)
	return pkt
}

// LayersToPacketChecked is LayersToPacket reporting failures as errors.
func LayersToPacketChecked(lyrs ...gopacket.SerializableLayer) (gopacket.Packet, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	if err := gopacket.SerializeLayers(buf, opts, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %v", err)
	}

	pkt := gopacket.NewPacket(
		buf.Bytes(),
		layers.LayerTypeEthernet,
		gopacket.Default,
	)

	if pkt.ErrorLayer() != nil {
		return nil, fmt.Errorf("failed to parse packet: %v", pkt.ErrorLayer())
	}

	return pkt, nil
}

// IPLayers returns the ethernet and IP layers of a packet between the two
// addresses carrying the given transport protocol.
func IPLayers(src netip.Addr, dst netip.Addr, proto layers.IPProtocol) (*layers.Ethernet, gopacket.NetworkLayer) {
	if src.Is4() != dst.Is4() {
		panic(fmt.Sprintf("IP version mismatch: src=%v dst=%v", src, dst))
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv6,
	}

	if src.Is4() {
		eth.EthernetType = layers.EthernetTypeIPv4
		return eth, &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
	}

	return eth, &layers.IPv6{
		Version:    6,
		NextHeader: proto,
		HopLimit:   64,
		SrcIP:      net.IP(src.AsSlice()),
		DstIP:      net.IP(dst.AsSlice()),
	}
}

// TCPPacket builds a TCP SYN packet.
func TCPPacket(t *testing.T, src netip.AddrPort, dst netip.AddrPort) gopacket.Packet {
	t.Helper()

	eth, ip := IPLayers(src.Addr(), dst.Addr(), layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port()),
		DstPort: layers.TCPPort(dst.Port()),
		SYN:     true,
		Window:  1024,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	return LayersToPacket(t, eth, ip.(gopacket.SerializableLayer), tcp, gopacket.Payload("yatable"))
}

// UDPPacket builds a UDP packet.
func UDPPacket(t *testing.T, src netip.AddrPort, dst netip.AddrPort) gopacket.Packet {
	t.Helper()

	eth, ip := IPLayers(src.Addr(), dst.Addr(), layers.IPProtocolUDP)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	return LayersToPacket(t, eth, ip.(gopacket.SerializableLayer), udp, gopacket.Payload("yatable"))
}
