//go:build windows

package commands

import (
	"fmt"
	"strings"

	"github.com/06eren/Pc-Mobil-Bond/internal/exec"
	"github.com/06eren/Pc-Mobil-Bond/internal/protocol"
)

// Virtual key codes sent through WScript.Shell.
const (
	keyMute      = 173
	keyVolDown   = 174
	keyVolUp     = 175
	keyNext      = 176
	keyPrevious  = 177
	keyPlayPause = 179
)

func powershell(script string) []exec.Invocation {
	return run("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

func sendKeys(codes ...int) []exec.Invocation {
	var b strings.Builder
	b.WriteString("$w = New-Object -ComObject WScript.Shell; ")
	for _, c := range codes {
		fmt.Fprintf(&b, "$w.SendKeys([char]%d); ", c)
	}
	return powershell(b.String())
}

const (
	monitorOffScript = `(Add-Type '[DllImport("user32.dll")]public static extern int SendMessage(int h,int m,int w,int l);' -Name Mon -PassThru)::SendMessage(-1,0x0112,0xF170,2)`
	mouseEventScript = `(Add-Type '[DllImport("user32.dll")]public static extern void mouse_event(int f,int x,int y,int d,int e);' -Name Mouse -PassThru)::mouse_event(%d,0,0,0,0)`
	cursorMoveScript = `Add-Type -AssemblyName System.Windows.Forms; $p = [System.Windows.Forms.Cursor]::Position; [System.Windows.Forms.Cursor]::Position = New-Object System.Drawing.Point(($p.X + %d), ($p.Y + %d))`
)

func platformTable() Table {
	return Table{
		Mute:           fixed(sendKeys(keyMute)),
		VolumeUp:       fixed(sendKeys(keyVolUp)),
		VolumeDown:     fixed(sendKeys(keyVolDown)),
		MediaPlayPause: fixed(sendKeys(keyPlayPause)),
		MediaNext:      fixed(sendKeys(keyNext)),
		MediaPrevious:  fixed(sendKeys(keyPrevious)),
		Lock:           fixed(run("rundll32.exe", "user32.dll,LockWorkStation")),
		TaskManager:    fixed(detach("taskmgr")),
		Notepad:        fixed(detach("notepad")),
		Calculator:     fixed(detach("calc")),
		Sleep:          fixed(run("rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0")),
		Hibernate:      fixed(run("shutdown", "/h")),
		SignOut:        fixed(run("shutdown", "/l")),
		ScreenOff:      fixed(powershell(monitorOffScript)),
		Shutdown:       fixed(run("shutdown", "/s", "/t", "0")),
		Restart:        fixed(run("shutdown", "/r", "/t", "0")),

		// Each key press moves the volume 2%, so drive it to zero first.
		SetVolume: func(cmd protocol.Command) ([]exec.Invocation, error) {
			v, err := volumeArg(cmd)
			if err != nil {
				return nil, err
			}
			codes := make([]int, 0, 50+v/2)
			for i := 0; i < 50; i++ {
				codes = append(codes, keyVolDown)
			}
			for i := 0; i < v/2; i++ {
				codes = append(codes, keyVolUp)
			}
			return sendKeys(codes...), nil
		},
		MouseMove: func(cmd protocol.Command) ([]exec.Invocation, error) {
			dx, dy, err := deltaArgs(cmd)
			if err != nil {
				return nil, err
			}
			return powershell(fmt.Sprintf(cursorMoveScript, dx, dy)), nil
		},
		MouseClick: func(cmd protocol.Command) ([]exec.Invocation, error) {
			b, err := buttonArg(cmd)
			if err != nil {
				return nil, err
			}
			flags := 0x0002 | 0x0004
			if b == "RIGHT" {
				flags = 0x0008 | 0x0010
			}
			return powershell(fmt.Sprintf(mouseEventScript, flags)), nil
		},
	}
}
