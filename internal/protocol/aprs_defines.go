package protocol

// APRS and station constants shared by the framer, configuration and the
// ground-side tooling

const (
	// Addressing
	APRS_DESTINATION = "APRS" // Generic APRS destination callsign
	BALLOON_SSID     = 11     // SSID convention for balloons and aircraft

	// Symbols (http://www.aprs.org/symbols/symbols-new.txt)
	SYMBOL_TABLE_PRIMARY = '/'
	SYMBOL_BALLOON       = 'O'

	// Data type identifiers
	DTI_POSITION_TIMESTAMP = '/' // Position with timestamp, no messaging
	DTI_USER_DEFINED       = '{'

	// Image chunk tag: user-defined format, user id '{', packet type 'I'
	IMAGE_TAG = "{{I"

	// Image chunk half selectors
	IMAGE_HALF_FIRST  = 'A'
	IMAGE_HALF_SECOND = 'B'

	// North American APRS frequency in MHz
	APRS_FREQUENCY_MHZ = 144.390

	METERS_TO_FEET = 3.28084
)
