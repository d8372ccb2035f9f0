//go:build linux

package commands

import (
	"os"
	"strconv"

	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

const sink = "@DEFAULT_SINK@"

// platformTable targets a PulseAudio/PipeWire desktop with systemd and X11 tools.
func platformTable() Table {
	return Table{
		Mute:           fixed(run("pactl", "set-sink-mute", sink, "toggle")),
		VolumeUp:       fixed(run("pactl", "set-sink-volume", sink, "+2%")),
		VolumeDown:     fixed(run("pactl", "set-sink-volume", sink, "-2%")),
		MediaPlayPause: fixed(run("playerctl", "play-pause")),
		MediaNext:      fixed(run("playerctl", "next")),
		MediaPrevious:  fixed(run("playerctl", "previous")),
		Lock:           fixed(run("loginctl", "lock-session")),
		TaskManager:    fixed(detach("gnome-system-monitor")),
		Notepad:        fixed(detach("gnome-text-editor")),
		Calculator:     fixed(detach("gnome-calculator")),
		Sleep:          fixed(run("systemctl", "suspend")),
		Hibernate:      fixed(run("systemctl", "hibernate")),
		ScreenOff:      fixed(run("xset", "dpms", "force", "off")),
		Shutdown:       fixed(run("systemctl", "poweroff")),
		Restart:        fixed(run("systemctl", "reboot")),

		SetVolume: func(cmd protocol.Command) ([]exec.Invocation, error) {
			v, err := volumeArg(cmd)
			if err != nil {
				return nil, err
			}
			return run("pactl", "set-sink-volume", sink, strconv.Itoa(v)+"%"), nil
		},
		SignOut: func(protocol.Command) ([]exec.Invocation, error) {
			if id := os.Getenv("XDG_SESSION_ID"); id != "" {
				return run("loginctl", "terminate-session", id), nil
			}
			return run("loginctl", "terminate-user", os.Getenv("USER")), nil
		},
		MouseMove: func(cmd protocol.Command) ([]exec.Invocation, error) {
			dx, dy, err := deltaArgs(cmd)
			if err != nil {
				return nil, err
			}
			return run("xdotool", "mousemove_relative", "--", strconv.Itoa(dx), strconv.Itoa(dy)), nil
		},
		MouseClick: func(cmd protocol.Command) ([]exec.Invocation, error) {
			b, err := buttonArg(cmd)
			if err != nil {
				return nil, err
			}
			button := "1"
			if b == "RIGHT" {
				button = "3"
			}
			return run("xdotool", "click", button), nil
		},
	}
}
