package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/dustin/go-humanize"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ardnew/softrndis/cdc"
	"github.com/ardnew/softrndis/internal/config"
	"github.com/ardnew/softrndis/netdev"
	"github.com/ardnew/softrndis/rndis"
)

// responseLength is the wLength hosts use for GET_ENCAPSULATED_RESPONSE.
const responseLength = 1025

type simulateFlags struct {
	configPath string
	metrics    bool
}

func newSimulateCmd() *cobra.Command {
	flags := &simulateFlags{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a host session against an in-memory RNDIS function",
		Long: `Simulate the control and data traffic of an RNDIS host: initialize
the function, read its OIDs, open the data path with a packet filter, pass
one frame each way, and halt. Every response is decoded as it is fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if flags.configPath != "" {
				var err error
				if cfg, err = config.Load(flags.configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Metrics.Enabled = flags.metrics
			}
			if err := cfg.ApplyLogging(cmd.ErrOrStderr()); err != nil {
				return err
			}
			return runSimulate(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().BoolVar(&flags.metrics, "metrics", false, "Collect and print protocol metrics")

	return cmd
}

// session plays the host side of one function.
type session struct {
	out   io.Writer
	fn    *rndis.Function
	reqID uint32
}

func (s *session) nextID() uint32 {
	s.reqID++
	return s.reqID
}

func (s *session) setup(p cdc.Setup) []byte {
	buf := make([]byte, cdc.SetupSize)
	p.MarshalTo(buf)
	return buf
}

// send delivers one control message and collects what it produced.
func (s *session) send(name string, msg []byte) ([]*rndis.Completion, error) {
	fmt.Fprintf(s.out, "==> %s\n", name)
	if err := describe(s.out, msg); err != nil {
		return nil, err
	}
	if _, err := s.fn.HandleControl(s.setup(cdc.EncapsulatedCommand(0, uint16(len(msg)))), msg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s.collect()
}

// collect fetches one response per pending notification.
func (s *session) collect() ([]*rndis.Completion, error) {
	var out []*rndis.Completion
	for {
		select {
		case <-s.fn.Notifications():
			buf, err := s.fn.HandleControl(s.setup(cdc.EncapsulatedResponse(0, responseLength)), nil)
			if err != nil {
				return out, err
			}
			fmt.Fprintf(s.out, "<== %s\n", humanize.Bytes(uint64(len(buf))))
			if err := describe(s.out, buf); err != nil {
				return out, err
			}
			c, err := rndis.DecodeCompletion(buf)
			if err != nil {
				return out, err
			}
			out = append(out, c)
		default:
			return out, nil
		}
	}
}

func runSimulate(out io.Writer, cfg *config.Config) error {
	opts := cfg.RegistryOptions()
	var promReg *prometheus.Registry
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		m, err := rndis.NewMetrics(promReg)
		if err != nil {
			return err
		}
		opts = append(opts, rndis.WithMetrics(m))
	}
	reg := rndis.NewRegistry(opts...)

	mac, err := cfg.HardwareAddr()
	if err != nil {
		return err
	}
	dev, err := netdev.New(cfg.Device.MTU, mac)
	if err != nil {
		return err
	}
	fn, err := rndis.NewFunction(reg, 0, dev, dev.Filter())
	if err != nil {
		return err
	}
	defer fn.Unbind()
	if err := cfg.Apply(reg, fn.ID()); err != nil {
		return err
	}

	s := &session{out: out, fn: fn}
	if _, err := s.send("initialize", rndis.EncodeInitialize(s.nextID(), 0x4000)); err != nil {
		return err
	}

	fmt.Fprintln(out, "==> link up")
	if err := fn.Open(); err != nil {
		return err
	}
	if _, err := s.collect(); err != nil {
		return err
	}

	for _, oid := range []rndis.OID{
		rndis.OIDGenSupportedList,
		rndis.OIDGenVendorDescription,
		rndis.OID8023PermanentAddress,
		rndis.OIDGenMaximumTotalSize,
	} {
		if _, err := s.send("query "+oid.String(), rndis.EncodeQuery(s.nextID(), oid, nil)); err != nil {
			return err
		}
	}

	filter := binary.LittleEndian.AppendUint32(nil,
		rndis.PacketTypeDirected|rndis.PacketTypeMulticast|rndis.PacketTypeBroadcast)
	if _, err := s.send("set packet filter", rndis.EncodeSet(s.nextID(), rndis.OIDGenCurrentPacketFilter, filter)); err != nil {
		return err
	}
	fmt.Fprintf(out, "data path: carrier=%t queue=%t filter=%s\n", dev.Carrier(), dev.QueueRunning(), dev.Filter().Load())

	replies, err := s.send("query link speed", rndis.EncodeQuery(s.nextID(), rndis.OIDGenLinkSpeed, nil))
	if err != nil {
		return err
	}
	for _, c := range replies {
		if c.MessageType == rndis.MsgQueryCmplt && len(c.Info) == 4 {
			bps := float64(binary.LittleEndian.Uint32(c.Info)) * 100
			fmt.Fprintf(out, "link speed: %s\n", humanize.SI(bps, "bit/s"))
		}
	}

	if _, err := s.send("keepalive", rndis.EncodeKeepalive(s.nextID())); err != nil {
		return err
	}

	if err := exchangeFrame(out, fn, dev); err != nil {
		return err
	}

	if _, err := s.send("halt", rndis.EncodeHalt(s.nextID())); err != nil {
		return err
	}

	snap, err := reg.Snapshot(fn.ID())
	if err != nil {
		return err
	}
	stats, _ := dev.Statistics()
	fmt.Fprintf(out, "state: %s\n", snap.State)
	fmt.Fprintf(out, "media: %s\n", snap.Media)
	fmt.Fprintf(out, "queued: %d\n", snap.Queued)
	fmt.Fprintf(out, "frames: rx_ok=%s tx_ok=%s filtered=%s\n",
		humanize.Comma(int64(stats.RxOK())), humanize.Comma(int64(stats.TxOK())),
		humanize.Comma(int64(dev.Filtered())))

	if promReg != nil {
		return printMetrics(out, promReg)
	}
	return nil
}

// exchangeFrame passes a broadcast ARP request from the network to the host
// and loops it back from the host to the network.
func exchangeFrame(out io.Writer, fn *rndis.Function, dev *netdev.Device) error {
	peer := net.HardwareAddr{0x02, 0x00, 0x5e, 0x00, 0x53, 0xfe}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       peer,
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   peer,
			SourceProtAddress: []byte{192, 168, 7, 1},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{192, 168, 7, 2},
		},
	)
	if err != nil {
		return fmt.Errorf("build frame: %w", err)
	}

	ok, err := dev.Receive(buf.Bytes())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "==> frame filtered")
		return nil
	}
	wrapped := fn.Transmit(<-dev.Frames())
	fmt.Fprintf(out, "==> bulk IN %s\n", humanize.Bytes(uint64(len(wrapped))))
	if err := describe(out, wrapped); err != nil {
		return err
	}

	frame, err := fn.Receive(wrapped)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "<== bulk OUT %s\n", humanize.Bytes(uint64(len(frame))))
	return dev.Transmit(frame)
}

func printMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if mf.GetName() != "rndis_messages_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var typ, result string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "type":
					typ = lp.GetValue()
				case "result":
					result = lp.GetValue()
				}
			}
			fmt.Fprintf(out, "messages{type=%s,result=%s}: %.0f\n", typ, result, m.GetCounter().GetValue())
		}
	}
	return nil
}
