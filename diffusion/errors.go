// errors.go - Fehler-Definitionen fuer den Diffusions-Sampler
//
// Alle Fehler sind Sentinel-Werte und werden mit fmt.Errorf("...: %w")
// angereichert. Aufrufer pruefen mit errors.Is.
package diffusion

import "errors"

var (
	// ErrPromptTooLong wird vor jedem Modell-Aufruf zurueckgegeben, wenn der
	// Prompt 77 oder mehr Tokens ergibt. Der Aufrufer muss kuerzen.
	ErrPromptTooLong = errors.New("diffusion: prompt too long")

	// ErrInvalidSchedule wird bei steps < 1, steps > Tabellenlaenge oder
	// einer physikalisch ungueltigen Alpha-Tabelle zurueckgegeben.
	ErrInvalidSchedule = errors.New("diffusion: invalid schedule")

	// ErrNumericInstability signalisiert a_t <= 0 (oder NaN) im DDIM-Update.
	// Fatal, wird nicht wiederholt.
	ErrNumericInstability = errors.New("diffusion: numeric instability")

	// ErrInvalidOptions fuer ungueltige Request-Parameter
	ErrInvalidOptions = errors.New("diffusion: invalid options")

	// ErrInvalidEmbedding fuer ungerade oder nicht-positive Embedding-Dimension
	ErrInvalidEmbedding = errors.New("diffusion: invalid embedding dimension")

	// ErrShapeMismatch wenn ein Kollaborator einen Tensor mit falscher Form liefert
	ErrShapeMismatch = errors.New("diffusion: shape mismatch")

	// ErrSamplerUsed wenn Run auf einem bereits gelaufenen Sampler aufgerufen wird
	ErrSamplerUsed = errors.New("diffusion: sampler already used")
)
