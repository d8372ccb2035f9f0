//go:build darwin

package commands

import (
	"fmt"

	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

func osascript(script string) []exec.Invocation {
	return run("osascript", "-e", script)
}

// platformTable uses AppleScript and pmset; mouse control needs cliclick.
func platformTable() Table {
	return Table{
		Mute:           fixed(osascript("set volume output muted not (output muted of (get volume settings))")),
		VolumeUp:       fixed(osascript("set volume output volume ((output volume of (get volume settings)) + 2)")),
		VolumeDown:     fixed(osascript("set volume output volume ((output volume of (get volume settings)) - 2)")),
		MediaPlayPause: fixed(osascript(`tell application "Music" to playpause`)),
		MediaNext:      fixed(osascript(`tell application "Music" to next track`)),
		MediaPrevious:  fixed(osascript(`tell application "Music" to previous track`)),
		Lock:           fixed(run("pmset", "displaysleepnow")),
		TaskManager:    fixed(detach("open", "-a", "Activity Monitor")),
		Notepad:        fixed(detach("open", "-a", "TextEdit")),
		Calculator:     fixed(detach("open", "-a", "Calculator")),
		Sleep:          fixed(run("pmset", "sleepnow")),
		Hibernate:      fixed(run("pmset", "sleepnow")),
		SignOut:        fixed(osascript(`tell application "System Events" to log out`)),
		ScreenOff:      fixed(run("pmset", "displaysleepnow")),
		Shutdown:       fixed(osascript(`tell application "System Events" to shut down`)),
		Restart:        fixed(osascript(`tell application "System Events" to restart`)),

		SetVolume: func(cmd protocol.Command) ([]exec.Invocation, error) {
			v, err := volumeArg(cmd)
			if err != nil {
				return nil, err
			}
			return osascript(fmt.Sprintf("set volume output volume %d", v)), nil
		},
		MouseMove: func(cmd protocol.Command) ([]exec.Invocation, error) {
			dx, dy, err := deltaArgs(cmd)
			if err != nil {
				return nil, err
			}
			return run("cliclick", fmt.Sprintf("m:%+d,%+d", dx, dy)), nil
		},
		MouseClick: func(cmd protocol.Command) ([]exec.Invocation, error) {
			b, err := buttonArg(cmd)
			if err != nil {
				return nil, err
			}
			if b == "RIGHT" {
				return run("cliclick", "rc:."), nil
			}
			return run("cliclick", "c:."), nil
		},
	}
}
