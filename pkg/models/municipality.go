package models

// Potential labels carried by the source dataset
const (
	LabelSolar   = "solar"
	LabelEolica  = "eolica"
	LabelHibrida = "hibrida"
	LabelUnknown = "desconocido"
)

// TrainingLabels are the classes a model is trained on, in display priority order.
// Display order is also the tie-break order for dominant-class selection.
var TrainingLabels = []string{LabelSolar, LabelEolica, LabelHibrida}

// GridTypeOffGrid is the tipo_red category for municipalities outside the
// interconnected national grid (Zonas No Interconectadas).
const GridTypeOffGrid = "ZNI"

// Source column names
const (
	ColumnDepartment       = "departamento"
	ColumnMunicipality     = "municipio"
	ColumnDaneCode         = "codigo_dane_municipio"
	ColumnLatitude         = "latitud"
	ColumnLongitude        = "longitud"
	ColumnAltitude         = "altitud_msnm"
	ColumnSolarRadiation   = "radiacion_kWhm2_dia"
	ColumnWindSpeed        = "viento_ms"
	ColumnTemperature      = "temperatura_C"
	ColumnRelativeHumidity = "humedad_relativa_pct"
	ColumnCloudCover       = "nubosidad_pct"
	ColumnGridType         = "tipo_red"
	ColumnPotential        = "potencial"
)

// NumericColumns are the continuous feature columns, in feature order
var NumericColumns = []string{
	ColumnLatitude,
	ColumnLongitude,
	ColumnAltitude,
	ColumnSolarRadiation,
	ColumnWindSpeed,
	ColumnTemperature,
	ColumnRelativeHumidity,
	ColumnCloudCover,
}

// RequiredColumns must all be present in the source header
var RequiredColumns = append([]string{
	ColumnDepartment,
	ColumnMunicipality,
	ColumnDaneCode,
}, append(append([]string{}, NumericColumns...), ColumnGridType, ColumnPotential)...)

// Record is one municipality row after cleaning
type Record struct {
	Department       string  `json:"departamento"`
	Municipality     string  `json:"municipio"`
	DaneCode         int64   `json:"codigo_dane_municipio"`
	Latitude         float64 `json:"latitud"`
	Longitude        float64 `json:"longitud"`
	AltitudeMASL     float64 `json:"altitud_msnm"`
	SolarRadiation   float64 `json:"radiacion_kWhm2_dia"`
	WindSpeed        float64 `json:"viento_ms"`
	TemperatureC     float64 `json:"temperatura_C"`
	RelativeHumidity float64 `json:"humedad_relativa_pct"`
	CloudCover       float64 `json:"nubosidad_pct"`
	GridType         string  `json:"tipo_red"`
	SourceLabel      string  `json:"potencial"`
}

// Numeric returns the continuous attributes in NumericColumns order
func (r *Record) Numeric() []float64 {
	return []float64{
		r.Latitude,
		r.Longitude,
		r.AltitudeMASL,
		r.SolarRadiation,
		r.WindSpeed,
		r.TemperatureC,
		r.RelativeHumidity,
		r.CloudCover,
	}
}

// IsTrainingLabel reports whether label is one of TrainingLabels
func IsTrainingLabel(label string) bool {
	for _, l := range TrainingLabels {
		if l == label {
			return true
		}
	}
	return false
}
