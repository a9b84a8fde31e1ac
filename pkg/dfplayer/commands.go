package dfplayer

// Command codes.
const (
	CmdNext         byte = 0x01
	CmdPrevious     byte = 0x02
	CmdPlayTrack    byte = 0x03
	CmdVolumeUp     byte = 0x04
	CmdVolumeDown   byte = 0x05
	CmdSetVolume    byte = 0x06
	CmdSetEQ        byte = 0x07
	CmdSelectDevice byte = 0x09
	CmdSleep        byte = 0x0a
	CmdWake         byte = 0x0b
	CmdReset        byte = 0x0c
	CmdResume       byte = 0x0d
	CmdPause        byte = 0x0e
	CmdPlayFolder   byte = 0x0f
	CmdPlayMP3      byte = 0x12
	CmdPlayAdvert   byte = 0x13
	CmdStopAdvert   byte = 0x15
	CmdStop         byte = 0x16
)

// Query codes.
const (
	QueryState           byte = 0x42
	QueryVolume          byte = 0x43
	QueryEQ              byte = 0x44
	QueryFileCountUSB    byte = 0x47
	QueryFileCountSD     byte = 0x48
	QueryFileCountFlash  byte = 0x49
	QueryTrackUSB        byte = 0x4b
	QueryTrackSD         byte = 0x4c
	QueryTrackFlash      byte = 0x4d
	QueryFolderFileCount byte = 0x4e
	QueryFolderCount     byte = 0x4f
)

// Parameter limits.
const (
	MaxVolume      = 30
	MaxEQ          = 5
	MaxFolder      = 99
	MaxFolderTrack = 255
	MaxRootTrack   = 2999
	MaxMP3Track    = 9999
)

// Folder selectors for Play besides numbered folders.
const (
	FolderRoot   = -1
	FolderMP3    = -2
	FolderAdvert = -3
)

// EQ presets.
const (
	EQNormal  = 0
	EQPop     = 1
	EQRock    = 2
	EQJazz    = 3
	EQClassic = 4
	EQBass    = 5
)

// State is the playback state.
type State int

// Playback states.
const (
	StateStopped State = 0
	StatePlaying State = 1
	StatePaused  State = 2
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// selectDeviceParams maps devices to the parameter of CmdSelectDevice.
var selectDeviceParams = map[Device]int{
	DeviceUSB:   1,
	DeviceSD:    2,
	DeviceFlash: 5,
}

var fileCountQueries = map[Device]byte{
	DeviceUSB:   QueryFileCountUSB,
	DeviceSD:    QueryFileCountSD,
	DeviceFlash: QueryFileCountFlash,
}

var trackQueries = map[Device]byte{
	DeviceUSB:   QueryTrackUSB,
	DeviceSD:    QueryTrackSD,
	DeviceFlash: QueryTrackFlash,
}
