package transport

// Instruction tokens of the command-file protocol. The game client (or an
// input driver) consumes newline-delimited payloads built from these
// prefixes.
const (
	TokenChat        = "CHAT "
	TokenWait        = "WAIT"
	TokenTeleport    = "TELEPORT"
	TokenKey         = "KEY"
	TokenOption      = "OPTION"
	TokenWaitFor     = "WAITFOR"
	TokenType        = "TYPE"
	TokenFocus       = "FOCUS"
	TokenMouse       = "MOUSE"
	TokenMouseClick  = "MOUSECLICK"
	TokenMouseScroll = "MOUSESCROLL"
	TokenScreenshot  = "SCREENSHOT"
	TokenConfig      = "CONFIG"
)
