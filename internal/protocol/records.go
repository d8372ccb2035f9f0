// Package protocol defines the text records exchanged over the discovery
// datagrams and the session stream.
//
// Every record is a UTF-8 string of ';'-separated fields whose first field
// (the discriminator) names the record type. Records carry no terminator:
// one write is one record, which is what legacy peers expect.
package protocol

import (
	"strconv"
	"strings"
)

const (
	// DiscoveryPort is the UDP port for presence broadcasts and connection requests
	DiscoveryPort = 9998
	// SessionPort is the TCP port the target listens on
	SessionPort = 9999

	// FieldSep separates record fields
	FieldSep = ";"
	// ArgSep separates a command name from its arguments
	ArgSep = ":"
)

// Discriminators and sentinels.
const (
	TypeAnnounce       = "DEVICE_ANNOUNCE"
	TypeConnectRequest = "CONNECT_REQUEST"
	TypeCommand        = "CMD"
	TypePerfUpdate     = "PERF_UPDATE"
	TypeFileStart      = "FILE_START"

	FileOK     = "FILE_OK_TO_SEND"
	FileCancel = "FILE_CANCEL"
	PinOK      = "PIN_OK"
	PinFail    = "PIN_FAIL"
)

// MaxDatagramSize bounds discovery datagrams.
const MaxDatagramSize = 1024

// Announcement is broadcast by a target so controllers can find it.
type Announcement struct {
	DisplayName string
	Address     string
	PIN         string
	OriginID    string
}

// Encode renders DEVICE_ANNOUNCE;name;address;pin;originId.
func (a Announcement) Encode() []byte {
	return join(TypeAnnounce, Sanitize(a.DisplayName), a.Address, a.PIN, a.OriginID)
}

// ConnectRequest asks the device with TargetID to start presenting its PIN.
type ConnectRequest struct {
	OriginID string
	TargetID string
}

// Encode renders CONNECT_REQUEST;originId;targetId.
func (r ConnectRequest) Encode() []byte {
	return join(TypeConnectRequest, r.OriginID, r.TargetID)
}

// DatagramKind tells which record a discovery datagram carried.
type DatagramKind int

const (
	DatagramAnnounce DatagramKind = iota + 1
	DatagramConnectRequest
)

// Datagram is a parsed discovery datagram. Only the field matching Kind is set.
type Datagram struct {
	Kind         DatagramKind
	Announcement Announcement
	Request      ConnectRequest
}

// ParseDatagram parses one discovery datagram.
func ParseDatagram(b []byte) (Datagram, error) {
	parts := strings.Split(string(b), FieldSep)
	switch parts[0] {
	case TypeAnnounce:
		if len(parts) != 5 {
			return Datagram{}, malformed("announce has %d fields", len(parts))
		}
		return Datagram{
			Kind: DatagramAnnounce,
			Announcement: Announcement{
				DisplayName: parts[1],
				Address:     parts[2],
				PIN:         parts[3],
				OriginID:    parts[4],
			},
		}, nil
	case TypeConnectRequest:
		if len(parts) != 3 {
			return Datagram{}, malformed("connect request has %d fields", len(parts))
		}
		return Datagram{
			Kind:    DatagramConnectRequest,
			Request: ConnectRequest{OriginID: parts[1], TargetID: parts[2]},
		}, nil
	default:
		return Datagram{}, malformed("unknown datagram type %q", parts[0])
	}
}

// Hello is the first record a controller writes after connecting.
type Hello struct {
	PIN         string
	Identity    string
	DisplayName string
}

// Encode renders pin;identity;displayName.
func (h Hello) Encode() []byte {
	return []byte(h.PIN + FieldSep + h.Identity + FieldSep + Sanitize(h.DisplayName))
}

// ParseHello splits a handshake record. Fewer than three fields is malformed;
// extra fields are ignored.
func ParseHello(s string) (Hello, error) {
	parts := strings.Split(s, FieldSep)
	if len(parts) < 3 {
		return Hello{}, malformed("hello has %d fields", len(parts))
	}
	return Hello{PIN: parts[0], Identity: parts[1], DisplayName: parts[2]}, nil
}

// Command is the payload of a CMD record: NAME[:arg[:arg...]].
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits NAME:arg:arg.
func ParseCommand(s string) Command {
	parts := strings.Split(s, ArgSep)
	cmd := Command{Name: parts[0]}
	if len(parts) > 1 {
		cmd.Args = parts[1:]
	}
	return cmd
}

// String renders NAME:arg:arg.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + ArgSep + strings.Join(c.Args, ArgSep)
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Encode renders CMD;NAME:args.
func (c Command) Encode() []byte {
	return join(TypeCommand, c.String())
}

// PerfUpdate is one telemetry sample pushed by the target.
type PerfUpdate struct {
	CPUPercent  float64
	RAMUsedGB   float64
	NetDownMbps float64
	NetUpMbps   float64
	CPUTempC    float64
	GPUTempC    float64
	CPUPowerW   float64
	GPUPowerW   float64
}

// Encode renders PERF_UPDATE with the precision legacy controllers display.
func (p PerfUpdate) Encode() []byte {
	return join(TypePerfUpdate,
		formatFloat(p.CPUPercent, 1),
		formatFloat(p.RAMUsedGB, 1),
		formatFloat(p.NetDownMbps, 2),
		formatFloat(p.NetUpMbps, 2),
		formatFloat(p.CPUTempC, 0),
		formatFloat(p.GPUTempC, 0),
		formatFloat(p.CPUPowerW, 0),
		formatFloat(p.GPUPowerW, 0),
	)
}

func parsePerfUpdate(parts []string) (PerfUpdate, error) {
	if len(parts) != 9 {
		return PerfUpdate{}, malformed("perf update has %d fields", len(parts))
	}
	vals := make([]float64, 8)
	for i, raw := range parts[1:] {
		// Peers running with a comma-decimal locale send "12,5".
		v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(raw), ",", ".", 1), 64)
		if err != nil {
			return PerfUpdate{}, malformed("perf update field %d: %v", i+1, err)
		}
		vals[i] = v
	}
	return PerfUpdate{
		CPUPercent:  vals[0],
		RAMUsedGB:   vals[1],
		NetDownMbps: vals[2],
		NetUpMbps:   vals[3],
		CPUTempC:    vals[4],
		GPUTempC:    vals[5],
		CPUPowerW:   vals[6],
		GPUPowerW:   vals[7],
	}, nil
}

// FileStart announces a transfer of Size raw bytes named Name.
type FileStart struct {
	Name string
	Size int64
}

// Encode renders FILE_START;name;size.
func (f FileStart) Encode() []byte {
	return join(TypeFileStart, Sanitize(f.Name), strconv.FormatInt(f.Size, 10))
}

func parseFileStart(parts []string) (FileStart, error) {
	if len(parts) != 3 {
		return FileStart{}, malformed("file start has %d fields", len(parts))
	}
	size, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil || size < 0 {
		return FileStart{}, malformed("file start size %q", parts[2])
	}
	if parts[1] == "" {
		return FileStart{}, malformed("file start without name")
	}
	return FileStart{Name: parts[1], Size: size}, nil
}

// Kind identifies a control record read from the session stream.
type Kind int

const (
	KindUnknown Kind = iota
	KindCommand
	KindPerfUpdate
	KindFileStart
	KindFileOK
	KindFileCancel
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return TypeCommand
	case KindPerfUpdate:
		return TypePerfUpdate
	case KindFileStart:
		return TypeFileStart
	case KindFileOK:
		return FileOK
	case KindFileCancel:
		return FileCancel
	default:
		return "UNKNOWN"
	}
}

// Control is a parsed session control record. Only the field matching Kind is set.
type Control struct {
	Kind    Kind
	Command Command
	Perf    PerfUpdate
	File    FileStart
	Raw     string
}

// ParseControl interprets text read from the session stream while no payload
// is expected. Unknown discriminators yield KindUnknown without an error;
// known discriminators with a bad shape yield ErrMalformedRecord.
func ParseControl(text string) (Control, error) {
	ctl := Control{Raw: text}
	switch text {
	case FileOK:
		ctl.Kind = KindFileOK
		return ctl, nil
	case FileCancel:
		ctl.Kind = KindFileCancel
		return ctl, nil
	}

	parts := strings.Split(text, FieldSep)
	switch parts[0] {
	case TypeCommand:
		if len(parts) < 2 || parts[1] == "" {
			return ctl, malformed("command without name")
		}
		ctl.Kind = KindCommand
		ctl.Command = ParseCommand(parts[1])
	case TypePerfUpdate:
		perf, err := parsePerfUpdate(parts)
		if err != nil {
			return ctl, err
		}
		ctl.Kind = KindPerfUpdate
		ctl.Perf = perf
	case TypeFileStart:
		fs, err := parseFileStart(parts)
		if err != nil {
			return ctl, err
		}
		ctl.Kind = KindFileStart
		ctl.File = fs
	}
	return ctl, nil
}

// Sanitize strips field separators from free text such as display names.
func Sanitize(s string) string {
	return strings.ReplaceAll(s, FieldSep, "")
}

func join(fields ...string) []byte {
	return []byte(strings.Join(fields, FieldSep))
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
