package optimize

// armijoC is the sufficient-decrease constant for the backtracking line
// search.
const armijoC = 1e-4

// lbfgsState carries the correction-pair window for the two-loop
// recursion.
type lbfgsState struct {
	window int
	ss     [][]float64 // x_{k+1} - x_k
	ts     [][]float64 // g_{k+1} - g_k
	prevX  []float64
	prevG  []float64
}

// direction computes d = -H*grad with the standard two-loop recursion,
// scaling the initial Hessian by the most recent curvature pair.
func (l *lbfgsState) direction(grad []float64) []float64 {
	n := len(grad)
	q := append([]float64(nil), grad...)
	m := len(l.ss)
	alphas := make([]float64, m)
	rhos := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		rhos[i] = 1 / dotf(l.ts[i], l.ss[i])
		alphas[i] = rhos[i] * dotf(l.ss[i], q)
		for p := 0; p < n; p++ {
			q[p] -= alphas[i] * l.ts[i][p]
		}
	}
	gamma := 1.0
	if m > 0 {
		last := m - 1
		gamma = dotf(l.ss[last], l.ts[last]) / dotf(l.ts[last], l.ts[last])
	}
	for p := 0; p < n; p++ {
		q[p] *= gamma
	}
	for i := 0; i < m; i++ {
		beta := rhos[i] * dotf(l.ts[i], q)
		for p := 0; p < n; p++ {
			q[p] += (alphas[i] - beta) * l.ss[i][p]
		}
	}
	for p := 0; p < n; p++ {
		q[p] = -q[p]
	}
	return q
}

// step takes one line-searched quasi-Newton step, updating x in place and
// returning the new objective value.
func (l *lbfgsState) step(model Objective, x, y, grad []float64, f, lr float64) (float64, error) {
	d := l.direction(grad)
	slope := dotf(grad, d)
	if slope >= 0 {
		// Not a descent direction (stale curvature); fall back to
		// steepest descent.
		for p := range d {
			d[p] = -grad[p]
		}
		slope = dotf(grad, d)
	}

	t := 1.0
	if len(l.ss) == 0 {
		t = lr
	}
	trial := make([]float64, len(x))
	for shrink := 0; shrink < 40; shrink++ {
		for p := range x {
			trial[p] = x[p] + t*d[p]
		}
		v, err := model.Eval(trial, y)
		if err != nil {
			return 0, err
		}
		if v <= f+armijoC*t*slope {
			copy(x, trial)
			return v, nil
		}
		t *= 0.5
		if t < 1e-12 {
			break
		}
	}
	// Step collapsed without sufficient decrease; keep the incumbent point
	// so the objective never moves uphill.
	return f, nil
}

// record stores the curvature pair from the step just taken, evicting the
// oldest pair beyond the window. Pairs with non-positive curvature are
// skipped to keep the Hessian approximation positive-definite.
func (l *lbfgsState) record(x, grad []float64) {
	if l.prevX == nil {
		l.prevX = append([]float64(nil), x...)
		l.prevG = append([]float64(nil), grad...)
		return
	}
	n := len(x)
	s := make([]float64, n)
	tv := make([]float64, n)
	for p := 0; p < n; p++ {
		s[p] = x[p] - l.prevX[p]
		tv[p] = grad[p] - l.prevG[p]
	}
	copy(l.prevX, x)
	copy(l.prevG, grad)
	if dotf(s, tv) > 1e-12 {
		l.ss = append(l.ss, s)
		l.ts = append(l.ts, tv)
		if len(l.ss) > l.window {
			l.ss = l.ss[1:]
			l.ts = l.ts[1:]
		}
	}
}

func dotf(a, b []float64) float64 {
	var acc float64
	for i := range a {
		acc += a[i] * b[i]
	}
	return acc
}
