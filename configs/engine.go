package configs

import (
	"fmt"
	"net"
	"strconv"

	"github.com/gregriff/lanmic/internal/codec"
	"github.com/gregriff/lanmic/internal/db"
	"github.com/gregriff/lanmic/internal/receiver"
	"github.com/gregriff/lanmic/internal/sender"
	"github.com/spf13/viper"
)

// Send is everything `lanmic send` needs besides the devices themselves.
type Send struct {
	Sender  sender.Config
	Quality codec.Quality
	Device  string
}

// Receive is everything `lanmic receive` needs besides the devices themselves.
type Receive struct {
	Receiver receiver.Config
	Device   string

	History     bool
	HistoryPath string
}

// LoadSend builds the sender settings from v. host overrides send.target when set.
func LoadSend(v *viper.Viper, host string) (Send, error) {
	if host == "" {
		host = v.GetString("send.target")
	}
	if host == "" {
		return Send{}, fmt.Errorf("no target host; pass one or set send.target")
	}

	mode, err := codec.ParseMode(v.GetString("send.mode"))
	if err != nil {
		return Send{}, err
	}
	quality, err := codec.ParseQuality(v.GetString("send.quality"))
	if err != nil {
		return Send{}, err
	}

	return Send{
		Sender: sender.Config{
			Target:     TargetAddr(host, v.GetInt("send.port")),
			Mode:       mode,
			Gain:       v.GetFloat64("send.gain"),
			Processing: v.GetBool("send.processing"),
			TestTone:   v.GetBool("send.test-tone"),
		},
		Quality: quality,
		Device:  v.GetString("send.device"),
	}, nil
}

// LoadReceive builds the receiver settings from v.
func LoadReceive(v *viper.Viper) (Receive, error) {
	mode, err := receiver.ParseJitterMode(v.GetString("receive.jitter-mode"))
	if err != nil {
		return Receive{}, err
	}

	path := v.GetString("history.path")
	if path == "" {
		path = db.DefaultPath()
	}

	return Receive{
		Receiver: receiver.Config{
			Listen:     v.GetString("receive.listen"),
			JitterMode: mode,
			ForceStart: receiver.ClampForceStart(v.GetDuration("receive.force-start")),
			Gain:       v.GetFloat64("receive.gain"),
			Processing: v.GetBool("receive.processing"),
			VadFloorDb: v.GetFloat64("receive.vad-floor-db"),
		},
		Device:      v.GetString("receive.device"),
		History:     v.GetBool("history.enabled"),
		HistoryPath: path,
	}, nil
}

// TargetAddr appends port to host unless host already names one.
func TargetAddr(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
