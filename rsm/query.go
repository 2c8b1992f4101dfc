package rsm

// run answers a query directly against the current mod_state; queries
// never touch the log and are served on followers as well as leaders.
func (r *queryRequest) run(h *Host) {
	reply, newData := h.fsm.HandleQuery(r.query, h.appliedRevision(), h.modState, h.modData)
	h.modData = newData
	r.reply <- queryResult{reply: reply}
}
