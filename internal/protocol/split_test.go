package protocol

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSplitRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single command", input: "CMD;MUTE", want: []string{"CMD;MUTE"}},
		{name: "two commands", input: "CMD;MUTECMD;LOCK", want: []string{"CMD;MUTE", "CMD;LOCK"}},
		{
			name:  "perf then file start",
			input: "PERF_UPDATE;1.0;2.0;0.10;0.20;40;50;10;20FILE_START;Screenshot_20240101_120000.png;2048",
			want:  []string{"PERF_UPDATE;1.0;2.0;0.10;0.20;40;50;10;20", "FILE_START;Screenshot_20240101_120000.png;2048"},
		},
		{name: "ack then command", input: "FILE_OK_TO_SENDCMD;MUTE", want: []string{"FILE_OK_TO_SEND", "CMD;MUTE"}},
		{name: "discriminator inside file name", input: "FILE_START;reportCMD;12", want: []string{"FILE_START;reportCMD;12"}},
		{name: "sentinel used as file name", input: "FILE_START;FILE_CANCEL;3", want: []string{"FILE_START;FILE_CANCEL;3"}},
		{name: "unknown prefix stays joined", input: "hello CMD;MUTE", want: []string{"hello CMD;MUTE"}},
		{name: "empty", input: "", want: []string{""}},
		{name: "command with extra field stays joined", input: "CMD;A;BCMD;MUTE", want: []string{"CMD;A;BCMD;MUTE"}},
		{name: "sentinel prefix of unknown text", input: "FILE_CANCELLEDCMD;MUTE", want: []string{"FILE_CANCELLEDCMD;MUTE"}},
		{name: "three records", input: "CMD;MUTEFILE_CANCELCMD;LOCK", want: []string{"CMD;MUTE", "FILE_CANCEL", "CMD;LOCK"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitRecords(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitRecords(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplitRecordsLargeInput(t *testing.T) {
	const size = 64 << 10

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "repeated command discriminator", input: strings.Repeat("CMD;", size/4), want: 1},
		{name: "sentinels inside size field", input: "FILE_START;x;1" + strings.Repeat(FileCancel, size/len(FileCancel)), want: 1},
		{name: "unknown text", input: strings.Repeat("x", size) + "CMD;MUTE", want: 1},
		{name: "many short commands", input: strings.Repeat("CMD;MUTE", size/8), want: size / 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			began := time.Now()
			got := SplitRecords(tt.input)
			if elapsed := time.Since(began); elapsed > time.Second {
				t.Fatalf("SplitRecords took %v on %d bytes", elapsed, len(tt.input))
			}
			if len(got) != tt.want {
				t.Fatalf("got %d records, want %d", len(got), tt.want)
			}
			if strings.Join(got, "") != tt.input {
				t.Fatal("records do not reassemble to the input")
			}
		})
	}
}

func BenchmarkSplitRecords(b *testing.B) {
	inputs := map[string]string{
		"discriminators": strings.Repeat("CMD;", 16<<10),
		"commands":       strings.Repeat("CMD;VOLUME_UP", 4<<10),
	}
	for name, input := range inputs {
		b.Run(name, func(b *testing.B) {
			b.SetBytes(int64(len(input)))
			for i := 0; i < b.N; i++ {
				SplitRecords(input)
			}
		})
	}
}
