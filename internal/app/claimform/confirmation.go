package claimform

// Confirmation is shown after a successful claim.
type Confirmation struct {
	Title       string
	Description string
	Checklist   []string
}

func DefaultConfirmation() Confirmation {
	return Confirmation{
		Title:       "Claim berhasil",
		Description: "Terima kasih, claim kamu sudah tercatat. Ikuti poin berikut agar undangan tidak terlewat.",
		Checklist: []string{
			"Cek Gmail dari email yang kamu submit secara berkala.",
			"Periksa juga folder Spam, Promosi, atau Sosial.",
			"Undangan bisa datang bertahap tergantung antrean.",
			"Jangan submit ulang, tiap divisi hanya 1x claim.",
			"Jika lama tidak masuk, hubungi Admin Grup Kominfo.",
		},
	}
}
