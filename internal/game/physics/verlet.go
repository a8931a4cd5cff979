package physics

// Verlet advances a point from its previous and current positions without
// an explicit velocity field:
//
//	next = pos + (pos − prev)·(1 − damping) + accel·dt²
//
// Velocity is injected by ApplyVelocity, which rewrites prev so the implied
// velocity equals the commanded one.
type Verlet struct {
	X, Z         float64
	PrevX, PrevZ float64
	Damping      float64
}

// NewVerlet places a body at rest.
func NewVerlet(x, z, damping float64) Verlet {
	return Verlet{X: x, Z: z, PrevX: x, PrevZ: z, Damping: Clamp(damping, 0, 1)}
}

// Step integrates one tick under acceleration (ax, az).
func (v *Verlet) Step(ax, az, dt float64) {
	keep := 1 - v.Damping
	nx := v.X + (v.X-v.PrevX)*keep + ax*dt*dt
	nz := v.Z + (v.Z-v.PrevZ)*keep + az*dt*dt
	v.PrevX, v.PrevZ = v.X, v.Z
	v.X, v.Z = nx, nz
}

// ApplyVelocity sets prev so the implied velocity over dt is (vx, vz).
func (v *Verlet) ApplyVelocity(vx, vz, dt float64) {
	v.PrevX = v.X - vx*dt
	v.PrevZ = v.Z - vz*dt
}

// Velocity returns the implied velocity over dt.
func (v *Verlet) Velocity(dt float64) (float64, float64) {
	if dt <= 0 {
		return 0, 0
	}
	return (v.X - v.PrevX) / dt, (v.Z - v.PrevZ) / dt
}

// Teleport moves the body and zeroes its implied velocity.
func (v *Verlet) Teleport(x, z float64) {
	v.X, v.Z = x, z
	v.PrevX, v.PrevZ = x, z
}

// Position returns the current position.
func (v *Verlet) Position() Point {
	return Point{v.X, v.Z}
}

// Previous returns the position before the last step.
func (v *Verlet) Previous() Point {
	return Point{v.PrevX, v.PrevZ}
}
