package spectrum

import "math"

// ThermalNoiseDBmHz is the thermal noise density kT at 290 K.
const ThermalNoiseDBmHz = -174.0

// ThermalNoise returns a flat noise PSD in W/Hz over m for a receiver with the
// given noise figure.
func ThermalNoise(m *Model, noiseFigureDB float64) *Value {
	return Uniform(m, math.Pow(10, (ThermalNoiseDBmHz+noiseFigureDB-30)/10))
}
