package sx126x

// Line is a digital output already configured as an output
type Line interface {
	Set(high bool) error
	Close() error
}

// Channel is the UART the module is attached to.
// Read must return within a bounded timeout and may return fewer bytes, or none.
type Channel interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Available() (int, error)
	FlushInput() error
	Close() error
}
