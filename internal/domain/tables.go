package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// WhatsApp
	&SessionRecord{},
	&WhatsAppDevice{},
}
