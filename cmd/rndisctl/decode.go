package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"github.com/ardnew/softrndis/rndis"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode an RNDIS message",
		Long: `Decode one RNDIS message given as hex. Arguments are joined, and
spaces, colons and dashes are ignored, so hexdump output can be pasted as is.

Host requests, device completions and indications, and PACKET_MSG data
transfers are recognized from the message type.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			return describe(cmd.OutOrStdout(), buf)
		},
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\n", "", "\t", "").Replace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	return buf, nil
}

// describe prints the fields of one message.
func describe(w io.Writer, buf []byte) error {
	h, err := rndis.DecodeHeader(buf)
	if err != nil {
		return err
	}
	switch {
	case h.MessageType == rndis.MsgPacket:
		return describePacket(w, buf)
	case h.MessageType == rndis.MsgIndicateStatus, uint32(h.MessageType)&0x80000000 != 0:
		c, err := rndis.DecodeCompletion(buf)
		if err != nil {
			return err
		}
		describeCompletion(w, c)
		return nil
	default:
		msg, err := rndis.Decode(buf)
		if err != nil {
			return err
		}
		describeRequest(w, msg)
		return nil
	}
}

func describeRequest(w io.Writer, msg rndis.Message) {
	switch m := msg.(type) {
	case *rndis.InitializeMsg:
		header(w, m.Header)
		fmt.Fprintf(w, "request_id: %d\n", m.RequestID)
		fmt.Fprintf(w, "version: %d.%d\n", m.MajorVersion, m.MinorVersion)
		fmt.Fprintf(w, "max_transfer_size: %d (%s)\n", m.MaxTransferSize,
			humanize.IBytes(uint64(m.MaxTransferSize)))
	case *rndis.HaltMsg:
		header(w, m.Header)
		fmt.Fprintf(w, "request_id: %d\n", m.RequestID)
	case *rndis.QueryMsg:
		header(w, m.Header)
		fmt.Fprintf(w, "request_id: %d\n", m.RequestID)
		fmt.Fprintf(w, "oid: %s\n", m.OID)
		info(w, m.Info)
	case *rndis.SetMsg:
		header(w, m.Header)
		fmt.Fprintf(w, "request_id: %d\n", m.RequestID)
		fmt.Fprintf(w, "oid: %s\n", m.OID)
		info(w, m.Info)
	case *rndis.ResetMsg:
		header(w, m.Header)
	case *rndis.KeepaliveMsg:
		header(w, m.Header)
		fmt.Fprintf(w, "request_id: %d\n", m.RequestID)
	case *rndis.UnknownMsg:
		header(w, m.Header)
		fmt.Fprint(w, hex.Dump(m.Raw))
	}
}

func describeCompletion(w io.Writer, c *rndis.Completion) {
	header(w, c.Header)
	switch c.MessageType {
	case rndis.MsgResetCmplt:
		fmt.Fprintf(w, "status: %s\n", c.Status)
		fmt.Fprintf(w, "addressing_reset: %t\n", c.AddressingReset)
		return
	case rndis.MsgIndicateStatus:
		fmt.Fprintf(w, "status: %s\n", c.Status)
		return
	}
	fmt.Fprintf(w, "request_id: %d\n", c.RequestID)
	fmt.Fprintf(w, "status: %s\n", c.Status)
	if c.Init != nil {
		fmt.Fprintf(w, "version: %d.%d\n", c.Init.MajorVersion, c.Init.MinorVersion)
		fmt.Fprintf(w, "device_flags: 0x%08X\n", c.Init.DeviceFlags)
		fmt.Fprintf(w, "medium: %d\n", c.Init.Medium)
		fmt.Fprintf(w, "max_packets_per_transfer: %d\n", c.Init.MaxPacketsPerTransfer)
		fmt.Fprintf(w, "max_transfer_size: %d (%s)\n", c.Init.MaxTransferSize,
			humanize.IBytes(uint64(c.Init.MaxTransferSize)))
	}
	if c.MessageType == rndis.MsgQueryCmplt {
		info(w, c.Info)
	}
}

func describePacket(w io.Writer, buf []byte) error {
	payload, err := rndis.Unwrap(buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "type: %s\n", rndis.MsgPacket)
	fmt.Fprintf(w, "length: %d\n", len(buf))
	fmt.Fprintf(w, "data_length: %d\n", len(payload))

	pkt := gopacket.NewPacket(payload, layers.LayerTypeEthernet, gopacket.Default)
	if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		fmt.Fprintf(w, "ethernet: %s -> %s %s\n", eth.SrcMAC, eth.DstMAC, eth.EthernetType)
	}
	for _, l := range pkt.Layers() {
		if l.LayerType() != layers.LayerTypeEthernet {
			fmt.Fprintf(w, "layer: %s\n", l.LayerType())
		}
	}
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		fmt.Fprintf(w, "decode_error: %v\n", errLayer.Error())
	}
	return nil
}

func header(w io.Writer, h rndis.Header) {
	fmt.Fprintf(w, "type: %s\n", h.MessageType)
	fmt.Fprintf(w, "length: %d\n", h.MessageLength)
}

func info(w io.Writer, b []byte) {
	fmt.Fprintf(w, "info_length: %d\n", len(b))
	if len(b) == 4 {
		fmt.Fprintf(w, "info_value: 0x%08X\n", binary.LittleEndian.Uint32(b))
	}
	if len(b) > 0 {
		fmt.Fprintf(w, "info: %s\n", hex.EncodeToString(b))
	}
}
