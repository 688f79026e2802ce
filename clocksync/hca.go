package clocksync

import (
	"math/bits"

	"github.com/unixpickle/clockbench/collcomm"
	"github.com/unixpickle/clockbench/timebase"
)

// hcaSync learns drift models along a binary tree of
// pairs and composes them so that every rank ends up with
// a model relative to rank 0.
//
// All of its timestamps are read from a clock that starts
// at zero when the module is initialized.
type hcaSync struct {
	modelSync
	adjusted *timebase.Adjusted

	rtt      RTTEstimator
	pingPong PingPonger

	intercept    InterceptMode
	latencyShare float64
}

func newHCASync(cfg Config, comm collcomm.Comm, clock timebase.Clock) *hcaSync {
	adjusted := &timebase.Adjusted{Clock: clock}
	h := &hcaSync{
		adjusted: adjusted,
		rtt: RTTEstimator{
			Comm:          comm,
			Clock:         adjusted,
			Log:           cfg.Log,
			Samples:       cfg.RTTSamples,
			OutlierFactor: cfg.OutlierFactor,
		},
		pingPong:     PingPonger{Comm: comm, Clock: adjusted},
		intercept:    cfg.Intercept,
		latencyShare: cfg.LatencyShare,
	}
	h.bind(comm, adjusted)
	return h
}

func (h *hcaSync) setParams(p Params) {
	h.modelSync.setParams(p)
	h.adjusted.Start = h.adjusted.Clock.Now()
}

func (h *hcaSync) calibrate() {
	rank, size := h.comm.Rank(), h.comm.Size()
	rounds := bits.Len(uint(size)) - 1
	maxPower := 1 << rounds

	models := make([]LinearModel, size)
	for i := 0; i < rounds; i++ {
		step := 1 << i
		if rank < maxPower {
			if rank%(2*step) == 0 {
				client := rank + step
				h.learnPair(rank, client)
				sub := h.recvModels(client, step)
				models[client] = sub[0]
				for j := 1; j < step; j++ {
					models[client+j] = Merge(models[client], sub[j], h.intercept)
				}
			} else if rank%(2*step) == step {
				master := rank - step
				models[rank] = h.learnPair(master, rank)
				h.sendModels(master, models[rank:rank+step])
			}
		}
		collcomm.Barrier(h.comm)
	}

	if size > maxPower {
		if rank < maxPower {
			if rank+maxPower < size {
				h.learnPair(rank, rank+maxPower)
			}
		} else {
			models[rank] = h.learnPair(rank-maxPower, rank)
		}
		if rank == 0 {
			for p := maxPower; p < size; p++ {
				model := h.recvModels(p, 1)[0]
				if p == maxPower {
					models[p] = model
				} else {
					models[p] = Merge(models[p-maxPower], model, h.intercept)
				}
			}
		} else if rank >= maxPower {
			h.sendModels(0, models[rank:rank+1])
		}
	}

	var chunks [][]float64
	if rank == 0 {
		chunks = make([][]float64, size)
		for i, m := range models {
			chunks[i] = m.vec()
		}
	}
	h.model = modelFromVec(collcomm.Scatter(h.comm, 0, chunks))

	if h.intercept == InterceptLinear {
		h.setAllIntercepts()
	}
	collcomm.Barrier(h.comm)

	if rank == 0 {
		h.model = LinearModel{}
	}
}

// learnPair learns client's model relative to master.
// The master gets the zero model.
func (h *hcaSync) learnPair(master, client int) LinearModel {
	rtt := h.rtt.Estimate(master, client)
	learner := Learner{
		Comm:         h.comm,
		Clock:        h.clk,
		Params:       h.params,
		LatencyShare: h.latencyShare,
	}
	model := learner.Learn(master, client, rtt)
	if h.intercept == InterceptLogP {
		h.setIntercept(&model, master, client)
	}
	return model
}

// setIntercept replaces client's intercept with one
// derived from a ping-pong offset against ref, keeping the
// learned slope.
func (h *hcaSync) setIntercept(model *LinearModel, ref, client int) {
	rank := h.comm.Rank()
	if rank == ref {
		h.pingPong.Offset(ref, client)
	} else if rank == client {
		offset := -h.pingPong.Offset(ref, client)
		now := h.clk.Now()
		model.Intercept = model.Slope*(-now) + offset
	}
}

func (h *hcaSync) setAllIntercepts() {
	if h.comm.Rank() != 0 {
		h.setIntercept(&h.model, 0, h.comm.Rank())
		return
	}
	for p := 1; p < h.comm.Size(); p++ {
		h.setIntercept(nil, 0, p)
	}
}

func (h *hcaSync) sendModels(dst int, models []LinearModel) {
	msg := make([]float64, 0, len(models)*2)
	for _, m := range models {
		msg = append(msg, m.vec()...)
	}
	h.comm.Send(dst, tagModels, msg)
}

func (h *hcaSync) recvModels(src, n int) []LinearModel {
	msg := h.comm.Recv(src, tagModels)
	if len(msg) != n*2 {
		panic("unexpected number of models")
	}
	res := make([]LinearModel, n)
	for i := range res {
		res[i] = modelFromVec(msg[i*2:])
	}
	return res
}

func (h *hcaSync) writeInfo(w *infoWriter) {
	w.str("sync", KindHCA.String())
	h.writeWindowInfo(w)
	w.int("fitpoints", h.params.FitPoints)
	w.int("exchanges", h.params.Exchanges)
	w.float("wait_time_s", h.params.WaitTime)
	w.str("hcasynctype", h.intercept.String())
}
