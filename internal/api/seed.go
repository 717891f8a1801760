package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ayushllcode/ngohub/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedDemoData 写入演示数据：管理员、示例用户、筹款项目、历史捐款和
// 钦奈的医院资源。管理员账号已存在时视为已初始化，直接跳过。
func (s *Server) SeedDemoData(ctx context.Context) error {
	const adminEmail = "admin@ngohub.org"
	var existing model.User
	err := s.db.WithContext(ctx).Where("email = ?", adminEmail).First(&existing).Error
	if err == nil {
		s.logger.Info("demo data already seeded, skip")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	userHash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []model.User{
		{Name: "Admin User", Email: adminEmail, Password: string(adminHash), Phone: "+91-9876543210", Role: model.RoleAdmin, IsVerified: true},
		{Name: "Rajesh Kumar", Email: "rajesh@example.com", Password: string(userHash), Phone: "+91-9876543211", Role: model.RoleUser, IsVerified: true},
		{Name: "Sunita Sharma", Email: "sunita@example.com", Password: string(userHash), Phone: "+91-9876543212", Role: model.RoleUser, IsVerified: true},
		{Name: "Arjun Patel", Email: "arjun@example.com", Password: string(userHash), Phone: "+91-9876543213", Role: model.RoleUser, IsVerified: true},
		{Name: "Priya Singh", Email: "priya@example.com", Password: string(userHash), Phone: "+91-9876543214", Role: model.RoleUser, IsVerified: true},
	}
	if err := s.db.WithContext(ctx).Create(&users).Error; err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	endIn := func(days int) *time.Time {
		t := time.Now().Add(time.Duration(days) * 24 * time.Hour)
		return &t
	}

	campaigns := []model.Campaign{
		{
			Title:        "Support My Daughter Preethi to Recover from Blood Clot in Brain",
			Description:  "My daughter needs urgent medical attention for blood clot treatment in her brain. The surgery is critical and time-sensitive.",
			Story:        "My daughter Preethi, just 8 years old, was playing in the garden when she suddenly collapsed. After rushing to the hospital, doctors discovered a severe blood clot in her brain that requires immediate surgical intervention. The estimated cost for the surgery and subsequent treatment is ₹5,00,000. As a daily wage worker, I cannot afford this amount. Please help save my daughter's life.",
			TargetAmount: 500000,
			Category:     "Medical",
			CreatorID:    users[1].ID,
			Beneficiary:  "Family Member",
			PatientInfo: model.PatientInfo{
				Name: "Preethi Kumar", Age: "8 years", Condition: "Blood clot in brain",
				Hospital: "Apollo Hospital, Chennai", City: "Chennai",
			},
			Status: model.CampaignStatusActive, Location: "Chennai", EndDate: endIn(30),
		},
		{
			Title:        "Help Rahul Fight Cancer and Live His Dreams",
			Description:  "Young Rahul needs chemotherapy and ongoing cancer treatment to beat leukemia and pursue his dream of becoming a doctor.",
			Story:        "Rahul is a bright 12-year-old who was diagnosed with acute lymphoblastic leukemia 6 months ago. Despite the devastating news, his spirit remains unbroken. He dreams of becoming a doctor to help other children like him. The treatment requires intensive chemotherapy sessions costing ₹8,00,000. His father, a small shopkeeper, has already spent his savings on initial treatment. Rahul needs our support to complete his treatment and live his dreams.",
			TargetAmount: 800000,
			Category:     "Medical",
			CreatorID:    users[2].ID,
			Beneficiary:  "Family Member",
			PatientInfo: model.PatientInfo{
				Name: "Rahul Sharma", Age: "12 years", Condition: "Acute Lymphoblastic Leukemia",
				Hospital: "Tata Memorial Hospital, Mumbai", City: "Mumbai",
			},
			Status: model.CampaignStatusActive, Location: "Mumbai", EndDate: endIn(45),
		},
		{
			Title:        "Support Education for Underprivileged Children",
			Description:  "Providing quality education and resources to children in rural areas who lack access to proper schooling facilities.",
			Story:        "In the remote village of Dharampur, 150 children walk 5 kilometers daily to attend school in a dilapidated building with no proper facilities. Our NGO wants to build a new school building, provide learning materials, and arrange transportation for these children. Quality education can break the cycle of poverty and give these children a chance at a better future. Your support can transform 150 young lives.",
			TargetAmount: 200000,
			Category:     "Education",
			CreatorID:    users[3].ID,
			Beneficiary:  "Community",
			Status:       model.CampaignStatusActive, Location: "Dharampur Village, Bihar", EndDate: endIn(60),
		},
		{
			Title:        "Clean Water Initiative for Rural Communities",
			Description:  "Installing water purification systems and building wells in villages without access to clean drinking water.",
			Story:        "Water-borne diseases are claiming lives in rural Maharashtra. Five villages with over 2000 residents rely on contaminated water sources, leading to frequent illness and death, especially among children. Our initiative aims to install solar-powered water purification systems and dig deep wells to provide clean, safe drinking water. This project will directly impact 2000+ lives and prevent countless waterborne diseases.",
			TargetAmount: 150000,
			Category:     "Community",
			CreatorID:    users[4].ID,
			Beneficiary:  "Community",
			Status:       model.CampaignStatusActive, Location: "Maharashtra", EndDate: endIn(40),
		},
		{
			Title:        "Emergency Heart Surgery for Baby Aarav",
			Description:  "6-month-old Aarav needs urgent heart surgery to repair a congenital heart defect.",
			Story:        "Baby Aarav was born with a complex congenital heart defect called Tetralogy of Fallot. Without immediate surgery, his condition will become life-threatening. The pediatric cardiac surgery costs ₹6,00,000, which is beyond our family's means. Aarav's parents are daily wage laborers who have already borrowed money for initial tests and medications. Every day of delay puts Aarav's life at greater risk. Please help save this innocent life.",
			TargetAmount: 600000,
			Category:     "Medical",
			CreatorID:    users[1].ID,
			Beneficiary:  "Family Member",
			PatientInfo: model.PatientInfo{
				Name: "Aarav Kumar", Age: "6 months", Condition: "Tetralogy of Fallot (Congenital Heart Defect)",
				Hospital: "Fortis Hospital, Delhi", City: "Delhi",
			},
			Status: model.CampaignStatusActive, Location: "Delhi", EndDate: endIn(20),
		},
		{
			Title:        "Flood Relief and Rehabilitation Program",
			Description:  "Providing immediate relief and long-term rehabilitation support to flood-affected families in Kerala.",
			Story:        "The recent floods in Kerala have displaced over 500 families in our district. Many have lost their homes, belongings, and livelihoods. Our organization is working around the clock to provide immediate relief including food, clothing, and temporary shelter. Additionally, we're planning long-term rehabilitation programs to help families rebuild their lives. The affected families need our urgent support to get back on their feet.",
			TargetAmount: 300000,
			Category:     "Emergency Relief",
			CreatorID:    users[2].ID,
			Beneficiary:  "Community",
			Status:       model.CampaignStatusActive, Location: "Kerala", EndDate: endIn(35),
		},
	}
	if err := s.db.WithContext(ctx).Create(&campaigns).Error; err != nil {
		return fmt.Errorf("seed campaigns: %w", err)
	}

	if err := s.seedDonations(ctx, campaigns); err != nil {
		return err
	}
	if err := s.seedResources(ctx); err != nil {
		return err
	}

	s.logger.Info("demo data seeded")
	return nil
}

// seedDonations 为每个项目生成 3~10 笔历史成功捐款，并同步累计金额。
func (s *Server) seedDonations(ctx context.Context, campaigns []model.Campaign) error {
	donorNames := []string{"Amit Shah", "Riya Gupta", "Vikash Yadav", "Anjali Mehta", "Rohit Singh", "Kavita Sharma", "Deepak Kumar", "Neha Agarwal", "Sanjay Patel"}
	donorEmails := []string{"amit@email.com", "riya@email.com", "vikash@email.com", "anjali@email.com", "rohit@email.com", "kavita@email.com", "deepak@email.com", "neha@email.com", "sanjay@email.com"}
	methods := []string{"card", "upi", "netbanking"}
	messages := []string{"God bless!", "Hope this helps", "Prayers for recovery", "Stay strong!", ""}

	var donations []model.Donation
	for ci := range campaigns {
		count := rand.Intn(8) + 3
		var total float64
		for i := 0; i < count; i++ {
			amount := float64(rand.Intn(10000) + 500)
			total += amount
			idx := rand.Intn(len(donorNames))
			anonymous := rand.Float64() > 0.7

			name := donorNames[idx]
			message := messages[rand.Intn(len(messages))]
			if anonymous {
				name = "Anonymous"
				message = ""
			}

			created := time.Now().Add(-time.Duration(rand.Intn(30*24)) * time.Hour)
			completed := time.Now()
			donations = append(donations, model.Donation{
				CampaignID:    campaigns[ci].ID,
				DonorName:     name,
				DonorEmail:    donorEmails[idx],
				Amount:        amount,
				PaymentID:     fmt.Sprintf("PAY_%d_%d", time.Now().UnixMilli(), rand.Intn(1_000_000)),
				TransactionID: fmt.Sprintf("TXN_%d_%d", time.Now().UnixMilli(), rand.Intn(1_000_000)),
				PaymentMethod: methods[rand.Intn(len(methods))],
				PaymentStatus: model.PaymentStatusCompleted,
				IsAnonymous:   anonymous,
				Message:       message,
				CreatedAt:     created,
				CompletedAt:   &completed,
			})
		}

		if err := s.db.WithContext(ctx).Model(&model.Campaign{}).
			Where("id = ?", campaigns[ci].ID).
			Update("raised_amount", total).Error; err != nil {
			return fmt.Errorf("seed raised amount: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).Create(&donations).Error; err != nil {
		return fmt.Errorf("seed donations: %w", err)
	}
	return nil
}

func (s *Server) seedResources(ctx context.Context) error {
	resources := []model.Resource{
		{
			Name:        "Institute of Child Health and Hospital for Children",
			Category:    "Tertiary Care Hospitals in Chennai",
			Type:        "Government",
			Description: "Specialized pediatric care with advanced medical facilities",
			Location:    model.ResourceLocation{Address: "Egmore", City: "Chennai", State: "Tamil Nadu", Pincode: "600008"},
			Contact: model.ResourceContact{
				Phone: []string{"+91-44-28194500", "+91-44-28194501"}, Email: "info@ich.gov.in", Website: "www.ich.gov.in",
			},
			Specializations: []string{"General Pediatrics", "Obstetrics", "Gynecology", "Gastroenterology", "Dermatology", "Neurology", "Orthopedics", "Pediatrics"},
			Facilities:      []string{"Patient and Medical Emergency Department", "X-ray Complex", "24/7 Emergency Services", "ICU", "Blood Bank"},
			WorkingHours:    "24/7",
			IsVerified:      true,
		},
		{
			Name:        "Royapettah Government Hospital",
			Category:    "Tertiary Care Hospitals in Chennai",
			Type:        "Government",
			Description: "Multi-specialty government hospital with comprehensive medical services",
			Location:    model.ResourceLocation{Address: "Royapettah", City: "Chennai", State: "Tamil Nadu", Pincode: "600014"},
			Contact: model.ResourceContact{
				Phone: []string{"+91-44-28331234", "+91-44-28335678"}, Email: "rgh@tnhealth.org",
			},
			Specializations: []string{"General Medicine", "General Surgery", "Orthopedics", "Neurology", "Oncology", "Nephrology"},
			Facilities:      []string{"ICU", "Radiant Emergency Ward", "OPD Services", "Blood Bank", "Diagnostic Services"},
			WorkingHours:    "24/7",
			IsVerified:      true,
		},
		{
			Name:        "Kilpauk Medical College Hospital",
			Category:    "Tertiary Care Hospitals in Chennai",
			Type:        "Government",
			Description: "Premier medical college hospital with super specialty services",
			Location:    model.ResourceLocation{Address: "Kilpauk", City: "Chennai", State: "Tamil Nadu", Pincode: "600010"},
			Contact: model.ResourceContact{
				Phone: []string{"+91-44-26642424"}, Email: "kmc@tnmgrmu.ac.in",
			},
			Specializations: []string{"Cardiac Surgery", "Neurology", "Orthopedic Surgery", "Urological Surgery", "Gastroenterology Surgery"},
			Facilities:      []string{"AC Rooms", "Canteen", "Different Ward Facilities", "Advanced Operation Theaters", "ICU"},
			WorkingHours:    "24/7",
			IsVerified:      true,
		},
		{
			Name:        "Apollo Hospital",
			Category:    "Tertiary Care Hospitals in Chennai",
			Type:        "Private",
			Description: "Leading private hospital with world-class medical facilities",
			Location:    model.ResourceLocation{Address: "Greams Road", City: "Chennai", State: "Tamil Nadu", Pincode: "600006"},
			Contact: model.ResourceContact{
				Phone: []string{"+91-44-28291200"}, Email: "chennai@apollohospitals.com", Website: "www.apollohospitals.com",
			},
			Specializations: []string{"Cardiology", "Oncology", "Neurology", "Orthopedics", "Transplant Surgery", "Emergency Medicine"},
			Facilities:      []string{"24/7 Emergency", "Advanced ICU", "Cath Lab", "MRI/CT Scan", "Blood Bank", "Pharmacy"},
			WorkingHours:    "24/7",
			IsVerified:      true,
		},
	}

	if err := s.db.WithContext(ctx).Create(&resources).Error; err != nil {
		return fmt.Errorf("seed resources: %w", err)
	}
	return nil
}
