package observability

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics menghitung kejadian transaksi inti. Semua method aman dipanggil
// pada receiver nil.
type DomainMetrics struct {
	salesRecorded      *prometheus.CounterVec
	stockConflicts     *prometheus.CounterVec
	distributions      prometheus.Counter
	receivablePayments *prometheus.CounterVec
}

// NewDomainMetrics mendaftarkan counter domain pada registerer.
func NewDomainMetrics(registerer prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		salesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sakinah_sales_recorded_total",
			Help: "Jumlah transaksi penjualan tersimpan berdasarkan status pembayaran.",
		}, []string{"status"}),
		stockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sakinah_stock_conflicts_total",
			Help: "Jumlah permintaan yang ditolak karena stok tidak cukup.",
		}, []string{"path"}),
		distributions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sakinah_distributions_created_total",
			Help: "Jumlah batch distribusi gudang yang dibuat.",
		}),
		receivablePayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sakinah_receivable_payments_total",
			Help: "Jumlah pembayaran piutang berdasarkan status hasil.",
		}, []string{"status"}),
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(m.salesRecorded, m.stockConflicts, m.distributions, m.receivablePayments)
	return m
}

// SaleRecorded mencatat satu penjualan.
func (m *DomainMetrics) SaleRecorded(status string) {
	if m == nil {
		return
	}
	m.salesRecorded.WithLabelValues(status).Inc()
}

// StockConflict mencatat penolakan stok pada jalur "sale" atau "distribution".
func (m *DomainMetrics) StockConflict(path string) {
	if m == nil {
		return
	}
	m.stockConflicts.WithLabelValues(path).Inc()
}

// DistributionCreated mencatat satu batch distribusi.
func (m *DomainMetrics) DistributionCreated() {
	if m == nil {
		return
	}
	m.distributions.Inc()
}

// ReceivablePayment mencatat pembayaran piutang.
func (m *DomainMetrics) ReceivablePayment(status string) {
	if m == nil {
		return
	}
	m.receivablePayments.WithLabelValues(status).Inc()
}
