// Package bme280 implements the Bosch BME280 calibration readout and
// compensation formulas documented by the sensor vendor. Ported
// arithmetic from original_source/sn2daemon/bme280.py; spec.md §1
// treats this math as an external collaborator, not something this
// spec redesigns.
package bme280

import "encoding/binary"

// Calibration holds the factory trim values read from registers
// 0x88-0xA1 (dig88) and 0xE1-0xE7 (dige1).
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// GetCalibration decodes the 26-byte dig88 block and 7-byte dige1
// block into a Calibration.
func GetCalibration(dig88 [26]byte, dige1 [7]byte) Calibration {
	le := binary.LittleEndian
	var c Calibration

	c.T1 = le.Uint16(dig88[0:2])
	c.T2 = int16(le.Uint16(dig88[2:4]))
	c.T3 = int16(le.Uint16(dig88[4:6]))

	c.P1 = le.Uint16(dig88[6:8])
	c.P2 = int16(le.Uint16(dig88[8:10]))
	c.P3 = int16(le.Uint16(dig88[10:12]))
	c.P4 = int16(le.Uint16(dig88[12:14]))
	c.P5 = int16(le.Uint16(dig88[14:16]))
	c.P6 = int16(le.Uint16(dig88[16:18]))
	c.P7 = int16(le.Uint16(dig88[18:20]))
	c.P8 = int16(le.Uint16(dig88[20:22]))
	c.P9 = int16(le.Uint16(dig88[22:24]))
	// dig88[24] is unused padding; dig88[25] is dig_H1.
	c.H1 = dig88[25]

	c.H2 = int16(le.Uint16(dige1[0:2]))
	h3 := dige1[2]
	h45_1 := int8(dige1[3])
	h45_2 := int8(dige1[4])
	h45_3 := int8(dige1[5])
	h6 := int8(dige1[6])

	c.H3 = h3
	c.H4 = (int16(h45_1) << 4) | (int16(h45_2) & 0xf)
	c.H5 = (int16(h45_3) << 4) | ((int16(h45_2) >> 4) & 0xf)
	c.H6 = h6

	return c
}

// Readout holds the three decoded raw ADC values from an 8-byte burst
// register read.
type Readout struct {
	RawTemperature int32
	RawPressure    int32
	RawHumidity    int32
}

// GetReadout unpacks the 8-byte readout block into raw pressure,
// temperature (20-bit, right-justified) and humidity (16-bit) values.
func GetReadout(readout [8]byte) Readout {
	pressureRaw := ((int32(readout[0]) << 16) | (int32(readout[1]) << 8) | int32(readout[2])) >> 4
	tempRaw := ((int32(readout[3]) << 16) | (int32(readout[4]) << 8) | int32(readout[5])) >> 4
	humidityRaw := int32(binary.BigEndian.Uint16(readout[6:8]))
	return Readout{RawTemperature: tempRaw, RawPressure: pressureRaw, RawHumidity: humidityRaw}
}

// CompensateTemperature returns temperature in degrees Celsius.
func CompensateTemperature(c Calibration, raw int32) float64 {
	ut := float64(raw)
	t1 := float64(c.T1)
	t2 := float64(c.T2)
	t3 := float64(c.T3)

	var1 := (ut/16384 - t1/1024) * t2
	var2 := ((ut/131072 - t1/8192) * (ut/131072 - t1/8192)) * t3
	return (var1 + var2) / 5120
}

// CompensatePressure returns pressure in Pa, given the already
// compensated temperature in degrees Celsius.
func CompensatePressure(c Calibration, raw int32, temp float64) float64 {
	p1, p2, p3 := float64(c.P1), float64(c.P2), float64(c.P3)
	p4, p5, p6 := float64(c.P4), float64(c.P5), float64(c.P6)
	p7, p8, p9 := float64(c.P7), float64(c.P8), float64(c.P9)

	adc := float64(raw)
	tFine := float64(int64(temp * 5120))

	var1 := tFine/2 - 64000
	var2 := var1 * var1 * p6 / 32768
	var2 = var2 + var1*p5*2
	var2 = var2/4 + p4*65536
	var1 = (p3*var1*var1/524288 + p2*var1) / 524288
	var1 = (1 + var1/32768) * p1
	if var1 == 0 {
		return 0
	}
	p := 1048576 - adc
	p = ((p - var2/4096) * 6250) / var1
	var1 = p9 * p * p / 2147483648
	var2 = p * p8 / 32768
	p = p + (var1+var2+p7)/16
	return p
}

// CompensateHumidity returns relative humidity in %RH, given the
// already compensated temperature in degrees Celsius.
func CompensateHumidity(c Calibration, raw int32, temp float64) float64 {
	h1, h2, h3 := float64(c.H1), float64(c.H2), float64(c.H3)
	h4, h5, h6 := float64(c.H4), float64(c.H5), float64(c.H6)

	adc := float64(raw)
	tFine := float64(int64(temp * 5120))

	h := tFine - 76800
	h = (adc - (h4*64 + h5/16384*h)) *
		(h2 / 65536 * (1 + h6/67108864*h*(1+h3/67108864*h)))
	h = h * (1 - h1*h/524288)
	return h
}

// Compensate decodes the raw readout and runs all three compensation
// formulas, returning (temperature °C, pressure Pa, humidity %RH).
func Compensate(c Calibration, readout [8]byte) (temp, pressure, humidity float64) {
	r := GetReadout(readout)
	temp = CompensateTemperature(c, r.RawTemperature)
	pressure = CompensatePressure(c, r.RawPressure, temp)
	humidity = CompensateHumidity(c, r.RawHumidity, temp)
	return temp, pressure, humidity
}
