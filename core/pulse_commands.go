package core

import "pulsegen/protocol"

func (p *Processor) registerCommands() {
	r := p.registry

	r.Register("START", "", p.handleStart)
	r.Register("STOP", "", p.handleStop)
	r.Register("SETPERIOD", "period_us", p.handleSetPeriod)
	r.Register("SETCH", "ch,t1,t2,...", p.handleSetChannel)
	r.Register("GETPERIOD", "", p.handleGetPeriod)
	r.Register("GETCH", "ch", p.handleGetChannel)
	r.Register("GETSETTINGS", "", p.handleGetSettings)
	r.Register("PING", "", p.handlePing)
	r.Register("SETID", "addr", p.handleSetID)
	r.Register("GETID", "", p.handleGetID)
	r.Register("VERSION", "", p.handleVersion)
	r.Register("RESET", "", p.handleReset)
	r.Register("TRACE", "", p.handleTrace)

	// Script commands of the earlier bench firmware. They do not reply.
	r.Register("CENBL", "0|1", p.handleLegacyEnable)
	r.Register("CPRDS", "freq,period_us", p.handleLegacyPeriod)
	r.Register("CCHNL", "ch,t1,t2,...", p.handleLegacyChannel)
}

// START
func (p *Processor) handleStart(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.engine.Start()
	p.reply.Reset()
	p.reply.AppendString("START")
	p.send(w)
}

// STOP
func (p *Processor) handleStop(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.engine.Stop()
	p.reply.Reset()
	p.reply.AppendString("STOP")
	p.send(w)
}

// SETPERIOD,<period_us>
func (p *Processor) handleSetPeriod(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	if v, ok := args.NextInt(); ok && v > 0 {
		p.engine.SetPeriod(uint32(v))
	}
	p.reply.Reset()
	p.reply.AppendString("SETPERIOD,")
	p.reply.AppendUint(p.engine.Period())
	p.send(w)
}

// SETCH,<ch>,<t1>,<t2>,...
func (p *Processor) handleSetChannel(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	ch, times, ok := p.channelArgs(args)
	if !ok {
		return
	}
	p.reply.Reset()
	p.reply.AppendString("SETCH,")
	p.reply.AppendUint(uint32(ch))
	for _, t := range times {
		p.reply.AppendByte(',')
		p.reply.AppendUint(t)
	}
	p.send(w)
}

// channelArgs parses and applies the arguments shared by SETCH and CCHNL.
func (p *Processor) channelArgs(args *protocol.Tokenizer) (int, []uint32, bool) {
	v, ok := args.NextInt()
	if !ok || v < 0 || v >= int64(p.engine.Channels().Count()) {
		return 0, nil, false
	}
	ch := int(v)
	times := protocol.ParseList(args.RestOfLine(), p.times[:0], MaxTogglesPerChannel)
	if !p.engine.SetChannel(ch, times) {
		return 0, nil, false
	}
	return ch, times, true
}

// GETPERIOD
func (p *Processor) handleGetPeriod(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.reply.Reset()
	p.reply.AppendString("PERIOD,")
	p.reply.AppendUint(p.engine.Period())
	p.send(w)
}

// GETCH,<ch>
func (p *Processor) handleGetChannel(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	v, ok := args.NextInt()
	if !ok || v < 0 || v >= int64(p.engine.Channels().Count()) {
		return
	}
	p.reply.Reset()
	p.appendChannel(int(v))
	p.send(w)
}

// appendChannel writes "CH,<ch>,<list>" for one channel and returns the
// number of toggles found.
func (p *Processor) appendChannel(ch int) int {
	times := p.engine.ChannelTimes(ch, p.readback[:0])
	p.reply.AppendString("CH,")
	p.reply.AppendUint(uint32(ch))
	p.reply.AppendByte(',')
	p.reply.AppendList(times)
	return len(times)
}

// GETSETTINGS
func (p *Processor) handleGetSettings(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.reply.Reset()
	p.reply.AppendString("PERIOD,")
	p.reply.AppendUint(p.engine.Period())
	p.reply.AppendByte('\n')
	for ch := 0; ch < p.engine.Channels().Count(); ch++ {
		times := p.engine.ChannelTimes(ch, p.readback[:0])
		if len(times) == 0 {
			continue
		}
		p.reply.AppendString("CH,")
		p.reply.AppendUint(uint32(ch))
		p.reply.AppendByte(',')
		p.reply.AppendList(times)
		p.reply.AppendByte('\n')
	}
	p.send(w)
}

// PING
func (p *Processor) handlePing(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.reply.Reset()
	p.reply.AppendString("PING")
	p.send(w)
}

// SETID,<addr>
func (p *Processor) handleSetID(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	v, ok := args.NextInt()
	if !ok || v < 0 || v > protocol.MaxAddress {
		return
	}
	addr := uint8(v)
	p.address.SetAddress(addr)
	if p.store != nil {
		if err := p.store.SaveAddress(addr); err != nil {
			DebugPrintln("[CMD] address not saved: " + err.Error())
		}
	}
	p.reply.Reset()
	p.reply.AppendString("SETID,")
	p.reply.AppendUint(uint32(addr))
	p.send(w)
}

// GETID
func (p *Processor) handleGetID(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.reply.Reset()
	p.reply.AppendString("ID,")
	p.reply.AppendUint(uint32(p.address.Address()))
	p.send(w)
}

// VERSION
func (p *Processor) handleVersion(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.reply.Reset()
	p.reply.AppendString("VERSION,")
	p.reply.AppendString(p.version.Software)
	p.reply.AppendByte(',')
	p.reply.AppendString(p.version.Hardware)
	p.reply.AppendByte(',')
	p.reply.AppendString(p.version.Compatibility)
	p.send(w)
}

// RESET replies first; the reset itself runs from CheckPendingReset.
func (p *Processor) handleReset(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.reply.Reset()
	p.reply.AppendString("RESET")
	p.send(w)
	p.RequestReset()
}

// TRACE dumps the engine trace through the debug writer.
func (p *Processor) handleTrace(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.engine.Trace().Dump(debugWriter())
	p.reply.Reset()
	p.reply.AppendString("TRACE")
	p.send(w)
}

// CENBL,<0|1>
func (p *Processor) handleLegacyEnable(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	v, ok := args.NextInt()
	if !ok {
		return
	}
	if v == 0 {
		p.engine.Stop()
	} else {
		p.engine.Start()
	}
}

// CPRDS,<freq>,<period_us>; the frequency is informational only.
func (p *Processor) handleLegacyPeriod(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	if _, ok := args.Next(); !ok {
		return
	}
	if v, ok := args.NextInt(); ok && v > 0 {
		p.engine.SetPeriod(uint32(v))
	}
}

// CCHNL,<ch>,<t1>,<t2>,...
func (p *Processor) handleLegacyChannel(args *protocol.Tokenizer, w protocol.ReplyWriter) {
	p.channelArgs(args)
}
